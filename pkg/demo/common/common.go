// Package common contains the domain types of a decoded demo: header, players,
// teams, equipment and map zones.
package common

import (
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	// DemoFilestamp is the magic at the start of every Source 1 demo.
	DemoFilestamp = "HL2DEMO"
	// DemoProtocol is the only supported demo protocol version.
	DemoProtocol = 4
	// GameDirectory is the game directory of CS:GO demos.
	GameDirectory = "csgo"
)

// DemoHeader contains information from a demo's header.
type DemoHeader struct {
	Filestamp       string  // aka. File-type, must be HL2DEMO
	Protocol        int     // Should be 4
	NetworkProtocol int     // Not sure what this is for
	ServerName      string  // Server's 'hostname' config value
	ClientName      string  // Usually 'GOTV Demo'
	MapName         string  // E.g. de_cache, de_nuke, cs_office, etc.
	GameDirectory   string  // Usually 'csgo'
	PlaybackTime    float32 // Demo duration in seconds
	PlaybackTicks   int     // Game duration in ticks
	PlaybackFrames  int     // Amount of 'frames' aka demo-ticks recorded
	SignonLength    int     // Length of the Signon package in bytes
}

// TickRate returns the tick rate the demo was recorded at (frames per second).
// Returns 0 if PlaybackTime is 0.
func (h DemoHeader) TickRate() float64 {
	if h.PlaybackTime == 0 {
		return 0
	}
	return float64(h.PlaybackFrames) / float64(h.PlaybackTime)
}

// TickTime returns the time a single tick takes in seconds.
// Returns 0 if PlaybackFrames is 0.
func (h DemoHeader) TickTime() float64 {
	if h.PlaybackFrames == 0 {
		return 0
	}
	return float64(h.PlaybackTime) / float64(h.PlaybackFrames)
}

// Validate returns every violated header rule, nil if the header is supported.
func (h DemoHeader) Validate() error {
	var result *multierror.Error

	if h.Filestamp != DemoFilestamp {
		result = multierror.Append(result, errors.Errorf("invalid filestamp %q", h.Filestamp))
	}

	if h.Protocol != DemoProtocol {
		result = multierror.Append(result, errors.Errorf("unsupported demo protocol %d", h.Protocol))
	}

	if h.GameDirectory != GameDirectory {
		result = multierror.Append(result, errors.Errorf("unsupported game directory %q", h.GameDirectory))
	}

	return result.ErrorOrNil()
}

// Team is the side of a player or team.
type Team byte

// Team values.
const (
	TeamUnassigned Team = iota
	TeamSpectators
	TeamTerrorists
	TeamCounterTerrorists
)

func (t Team) String() string {
	switch t {
	case TeamSpectators:
		return "Spectators"
	case TeamTerrorists:
		return "Terrorists"
	case TeamCounterTerrorists:
		return "CounterTerrorists"
	}
	return "Unassigned"
}

// TeamFromNumber returns the default side of a team number (m_iTeamNum).
func TeamFromNumber(num int) Team {
	if num < 0 || num > int(TeamCounterTerrorists) {
		return TeamUnassigned
	}
	return Team(num)
}

// RoundEndReason is the reason given for the end of a round.
type RoundEndReason byte

// RoundEndReasons constants give information about why a round ended (Bomb defused, exploded etc.).
const (
	RoundEndReasonUnknown RoundEndReason = iota
	RoundEndReasonTargetBombed
	RoundEndReasonVIPEscaped
	RoundEndReasonVIPKilled
	RoundEndReasonTerroristsEscaped
	RoundEndReasonCTStoppedEscape
	RoundEndReasonTerroristsStopped
	RoundEndReasonBombDefused
	RoundEndReasonCTWin
	RoundEndReasonTerroristsWin
	RoundEndReasonDraw
	RoundEndReasonHostagesRescued
	RoundEndReasonTargetSaved
	RoundEndReasonHostagesNotRescued
	RoundEndReasonTerroristsNotEscaped
	RoundEndReasonVIPNotEscaped
	RoundEndReasonGameStart
	RoundEndReasonTerroristsSurrender
	RoundEndReasonCTSurrender
)

// TickCounters counts the ticks a player spent in a state.
type TickCounters struct {
	Connected int
	Alive     int
}

// Player contains mostly game-relevant player information.
type Player struct {
	SteamID64                   uint64    // 64-bit representation of the user's Steam ID, 0 for bots and unresolved connections
	LastAlivePosition           r3.Vector // The location where the player was last alive. Should be equal to Position if the player is still alive.
	Position                    r3.Vector // In-game coordinates
	Velocity                    r3.Vector // Movement per second
	EntityID                    int       // The ID of the player-entity, see Entity field
	UserID                      int       // Mostly used in game-events to address this player
	Name                        string    // Steam / in-game user name
	Hp                          int
	Armor                       int
	Money                       int
	CurrentEquipmentValue       int
	FreezetimeEndEquipmentValue int
	RoundStartEquipmentValue    int
	ActiveWeaponID              int                // Used internally to set the active weapon, see ActiveWeapon()
	RawWeapons                  map[int]*Equipment // All weapons the player is currently carrying, keyed by entity id
	TeamID                      int                // Raw team number (m_iTeamNum)
	Team                        Team
	ViewDirectionX              float32
	ViewDirectionY              float32
	FlashDuration               float32 // Blindness duration from the flashbang currently affecting the player (seconds)
	TickCounters                TickCounters
	IsBot                       bool // True if this is a bot-entity
	IsConnected                 bool
	IsDucking                   bool
	HasDefuseKit                bool
	HasHelmet                   bool
}

// NewPlayer creates a *Player with an initialized equipment map.
func NewPlayer() *Player {
	return &Player{
		RawWeapons:     make(map[int]*Equipment),
		ActiveWeaponID: EntityHandleIndexMask,
	}
}

// IsAlive returns true if the player is alive.
func (p *Player) IsAlive() bool {
	return p.Hp > 0
}

// ActiveWeapon returns the currently active / equipped weapon of the player.
func (p *Player) ActiveWeapon() *Equipment {
	return p.RawWeapons[p.ActiveWeaponID]
}

// Weapons returns all weapons in the player's possession, ordered by entity id.
func (p *Player) Weapons() []*Equipment {
	res := make([]*Equipment, 0, len(p.RawWeapons))
	for _, w := range p.RawWeapons {
		res = append(res, w)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].EntityID < res[j].EntityID
	})

	return res
}

func (p *Player) String() string {
	if p == nil {
		return "(nil)"
	}
	return fmt.Sprintf("%s (userid %d, entity %d)", p.Name, p.UserID, p.EntityID)
}

// TeamState contains a team's ID, score and clan name.
type TeamState struct {
	Team     Team
	ID       int // m_iTeamNum of the team entity
	Score    int
	ClanName string
}

// EntityHandleIndexMask extracts the entity id from an entity handle.
// A handle with all index bits set does not reference any entity.
const EntityHandleIndexMask = (1 << 11) - 1

// EntityIDFromHandle returns the entity id referenced by handle, -1 for the invalid handle.
func EntityIDFromHandle(handle int) int {
	id := handle & EntityHandleIndexMask
	if id == EntityHandleIndexMask {
		return -1
	}
	return id
}

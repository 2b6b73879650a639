package demo

import (
	"sort"

	"github.com/golang/geo/r3"

	"github.com/dualitycsgo1/csgodemo/internal/sendtables"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
)

// GameState contains all game-state relevant information.
type GameState struct {
	mapName    string
	ingameTick int

	tState  common.TeamState
	ctState common.TeamState
	// team number -> side, from the CCSTeam entities
	teamSides map[int]common.Team

	playersByUserID   map[int]*common.Player // Maps user-IDs to players
	playersByEntityID map[int]*common.Player // Maps entity-IDs to players
	playerEntities    map[int]*sendtables.Entity
	// old user id -> new user id of the same player after a reconnect
	replacements map[int]int

	weapons            map[int]*common.Equipment
	grenadeProjectiles map[int]*common.GrenadeProjectile
	infernos           map[int]*common.Inferno
	infernoEntities    map[int]*sendtables.Entity

	bombsiteCenters map[common.Bombsite]r3.Vector
	triggers        map[int]common.Zone
	rescueZones     map[int]common.Zone

	rounds roundTracker
}

func newGameState() *GameState {
	return &GameState{
		tState:             common.TeamState{Team: common.TeamTerrorists, ID: int(common.TeamTerrorists)},
		ctState:            common.TeamState{Team: common.TeamCounterTerrorists, ID: int(common.TeamCounterTerrorists)},
		teamSides:          make(map[int]common.Team),
		playersByUserID:    make(map[int]*common.Player),
		playersByEntityID:  make(map[int]*common.Player),
		playerEntities:     make(map[int]*sendtables.Entity),
		replacements:       make(map[int]int),
		weapons:            make(map[int]*common.Equipment),
		grenadeProjectiles: make(map[int]*common.GrenadeProjectile),
		infernos:           make(map[int]*common.Inferno),
		infernoEntities:    make(map[int]*sendtables.Entity),
		bombsiteCenters:    make(map[common.Bombsite]r3.Vector),
		triggers:           make(map[int]common.Zone),
		rescueZones:        make(map[int]common.Zone),
	}
}

// MapName returns the name of the map being played, from the header or the server info.
func (gs *GameState) MapName() string {
	return gs.mapName
}

// IngameTick returns the latest actual tick number of the server during the game.
func (gs *GameState) IngameTick() int {
	return gs.ingameTick
}

// RoundsPlayed returns the number of rounds that ended so far, synthesized round ends included.
func (gs *GameState) RoundsPlayed() int {
	return gs.rounds.played
}

// Team returns the TeamState of a side, nil for spectators and unassigned.
func (gs *GameState) Team(team common.Team) *common.TeamState {
	switch team {
	case common.TeamTerrorists:
		return &gs.tState
	case common.TeamCounterTerrorists:
		return &gs.ctState
	}
	return nil
}

// TeamScore returns the score of a side.
func (gs *GameState) TeamScore(team common.Team) int {
	if state := gs.Team(team); state != nil {
		return state.Score
	}
	return 0
}

// Participants returns a struct with all currently connected players & spectators and utility functions.
// The struct contains references to the original maps so it's always up-to-date.
func (gs *GameState) Participants() Participants {
	return Participants{gs: gs}
}

// Weapons returns a map of all weapons currently in the game, keyed by entity id.
func (gs *GameState) Weapons() map[int]*common.Equipment {
	return gs.weapons
}

// GrenadeProjectiles returns a map from entity-IDs to all live grenade projectiles.
func (gs *GameState) GrenadeProjectiles() map[int]*common.GrenadeProjectile {
	return gs.grenadeProjectiles
}

// Infernos returns a map from entity-IDs to all currently burning infernos (fires from incendiaries and Molotovs).
func (gs *GameState) Infernos() map[int]*common.Inferno {
	return gs.infernos
}

// Bombsite returns the trigger area of a bomb target.
// The trigger is the one containing the site's center as announced by the player resource.
func (gs *GameState) Bombsite(site common.Bombsite) (common.BombsiteInfo, bool) {
	center, ok := gs.bombsiteCenters[site]
	if !ok {
		return common.BombsiteInfo{}, false
	}

	for _, id := range sortedKeys(gs.triggers) {
		zone := gs.triggers[id]
		if zone.Contains(center) {
			return common.BombsiteInfo{Site: site, Center: center, Zone: zone}, true
		}
	}

	return common.BombsiteInfo{}, false
}

// bombsiteByTrigger resolves the site index sent with bomb events.
func (gs *GameState) bombsiteByTrigger(entityID int) common.Bombsite {
	zone, ok := gs.triggers[entityID]
	if !ok {
		return common.BombsiteUnknown
	}

	for _, site := range []common.Bombsite{common.BombsiteA, common.BombsiteB} {
		if center, ok := gs.bombsiteCenters[site]; ok && zone.Contains(center) {
			return site
		}
	}

	return common.BombsiteUnknown
}

// RescueZones returns all hostage rescue zones in world coordinates, ordered by entity id.
func (gs *GameState) RescueZones() []common.Zone {
	res := make([]common.Zone, 0, len(gs.rescueZones))
	for _, id := range sortedKeys(gs.rescueZones) {
		res = append(res, gs.rescueZones[id])
	}
	return res
}

// resolveUserID follows the replacement chain of a reconnected player.
func (gs *GameState) resolveUserID(userID int) int {
	seen := map[int]bool{userID: true}

	for {
		next, ok := gs.replacements[userID]
		if !ok || seen[next] {
			return userID
		}

		seen[next] = true
		userID = next
	}
}

func (gs *GameState) playerByUserID(userID int) *common.Player {
	return gs.playersByUserID[gs.resolveUserID(userID)]
}

// sideOf returns the side a team number belongs to.
func (gs *GameState) sideOf(teamNum int) common.Team {
	if side, ok := gs.teamSides[teamNum]; ok {
		return side
	}
	return common.TeamFromNumber(teamNum)
}

// Participants provides helper functions on top of the currently connected players.
// E.g. ByUserID(), ByEntityID(), TeamMembers(), etc.
//
// See GameState.Participants()
type Participants struct {
	gs *GameState
}

// ByUserID returns all currently connected players in a map where the key is the user-ID.
// The returned map is a snapshot and is not updated on changes (not a reference to the actual, underlying map).
// Includes spectators.
func (ptcp Participants) ByUserID() map[int]*common.Player {
	res := make(map[int]*common.Player)
	for k, v := range ptcp.gs.playersByUserID {
		if v.IsConnected {
			res[k] = v
		}
	}
	return res
}

// ByEntityID returns all currently connected players in a map where the key is the entity-ID.
// The returned map is a snapshot and is not updated on changes (not a reference to the actual, underlying map).
// Includes spectators.
func (ptcp Participants) ByEntityID() map[int]*common.Player {
	res := make(map[int]*common.Player)
	for k, v := range ptcp.gs.playersByEntityID {
		res[k] = v
	}
	return res
}

// FindByUserID returns the player with the given user id.
// User ids of players that reconnected resolve to the new connection.
func (ptcp Participants) FindByUserID(userID int) *common.Player {
	return ptcp.gs.playerByUserID(userID)
}

// All returns all players ever bound, disconnected ones included, ordered by user id.
func (ptcp Participants) All() []*common.Player {
	res := make([]*common.Player, 0, len(ptcp.gs.playersByUserID))
	for _, id := range sortedKeys(ptcp.gs.playersByUserID) {
		res = append(res, ptcp.gs.playersByUserID[id])
	}
	return res
}

// Connected returns all currently connected players & spectators, ordered by user id.
func (ptcp Participants) Connected() []*common.Player {
	var res []*common.Player
	for _, pl := range ptcp.All() {
		if pl.IsConnected {
			res = append(res, pl)
		}
	}
	return res
}

// Playing returns connected players that are on the Terrorist or Counter-Terrorist side.
func (ptcp Participants) Playing() []*common.Player {
	var res []*common.Player
	for _, pl := range ptcp.Connected() {
		if pl.Team == common.TeamTerrorists || pl.Team == common.TeamCounterTerrorists {
			res = append(res, pl)
		}
	}
	return res
}

// TeamMembers returns all connected players belonging to the requested side.
func (ptcp Participants) TeamMembers(team common.Team) []*common.Player {
	var res []*common.Player
	for _, pl := range ptcp.Connected() {
		if pl.Team == team {
			res = append(res, pl)
		}
	}
	return res
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

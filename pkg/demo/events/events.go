// Package events contains all events that can be sent out from the demo parser.
//
// Events are dispatched to handlers registered via Parser.RegisterEventHandler().
// A handler receives every event assignable to its single parameter's type.
package events

import (
	"github.com/golang/geo/r3"

	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
)

// TickDone signals that a tick is done.
type TickDone struct{}

// MatchStart signals that the match has started.
type MatchStart struct{}

// RoundStart signals that a new round has started.
type RoundStart struct {
	TimeLimit int
	FragLimit int
	Objective string
}

// RoundFreezetimeEnd signals that the freeze time is over.
// TimeEnd is the ingame time in seconds, -1 if the event was synthesized
// because the round ended without a freeze time end.
type RoundFreezetimeEnd struct {
	TimeEnd float64
}

// RoundEnd signals that a round just finished.
// Attention: TeamState.Score is not up to date yet when this is dispatched.
// Add +1 to the winner's score as a workaround.
type RoundEnd struct {
	Message string
	Reason  common.RoundEndReason
	Winner  common.Team
}

// RoundEndOfficial signals that the round has 'officially' ended.
// After RoundEnd and before this players are still able to walk around.
type RoundEndOfficial struct{}

// RoundMVPAnnouncement signals the announcement of the last rounds MVP.
type RoundMVPAnnouncement struct {
	Player *common.Player
	Reason int
}

// ScoreUpdated signals that the score of a team changed.
type ScoreUpdated struct {
	OldScore  int
	NewScore  int
	TeamState *common.TeamState
}

// Kill signals that a player has been killed.
type Kill struct {
	Weapon            *common.Equipment
	Victim            *common.Player
	Killer            *common.Player
	Assister          *common.Player
	PenetratedObjects int
	IsHeadshot        bool
	AssistedFlash     bool
	AttackerBlind     bool
	NoScope           bool
	ThroughSmoke      bool
}

// PlayerHurt signals that a player has been damaged.
type PlayerHurt struct {
	Player       *common.Player
	Attacker     *common.Player // May be nil if the damage was dealt by the world
	Health       int
	Armor        int
	Weapon       *common.Equipment
	HealthDamage int
	ArmorDamage  int
	HitGroup     int
}

// PlayerFlashed signals that a player was flashed.
type PlayerFlashed struct {
	Player   *common.Player
	Duration float32
}

// WeaponFire signals that a weapon has been fired.
type WeaponFire struct {
	Shooter *common.Player
	Weapon  *common.Equipment
}

// PlayerBind signals that a new connection (UserID) has been bound to a player.
type PlayerBind struct {
	Player *common.Player
}

// PlayerReconnected signals that a new connection belongs to a previously seen player.
// Lookups of OldUserID resolve to Player from now on.
type PlayerReconnected struct {
	Player    *common.Player
	OldUserID int
}

// PlayerDisconnected signals that a player has disconnected.
type PlayerDisconnected struct {
	Player *common.Player
	Reason string
}

// PlayerTeamChange signals that a player changed teams.
type PlayerTeamChange struct {
	Player  *common.Player
	NewTeam common.Team
	OldTeam common.Team
	Silent  bool
	IsBot   bool
}

// BotTakenOver signals that a player took over a bot.
type BotTakenOver struct {
	Taker *common.Player
}

// BombEvent contains the common attributes of bomb events.
type BombEvent struct {
	Player *common.Player
	Site   common.Bombsite
}

// BombPlantBegin signals the start of a plant.
type BombPlantBegin struct {
	BombEvent
}

// BombPlantAborted signals the abortion of a plant.
type BombPlantAborted struct {
	BombEvent
}

// BombPlanted signals that the bomb has been planted.
type BombPlanted struct {
	BombEvent
}

// BombDefused signals that the bomb has been defused.
type BombDefused struct {
	BombEvent
}

// BombExplode signals that the bomb has exploded.
type BombExplode struct {
	BombEvent
}

// BombDefuseStart signals the start of defusing.
type BombDefuseStart struct {
	Player *common.Player
	HasKit bool
}

// BombDefuseAborted signals that the defuser aborted the action.
type BombDefuseAborted struct {
	Player *common.Player
}

// HostagePickedUp signals that a hostage started following a player.
type HostagePickedUp struct {
	Player          *common.Player
	HostageEntityID int
}

// HostageRescued signals that a hostage has been rescued.
type HostageRescued struct {
	Player          *common.Player
	HostageEntityID int
	Site            int
}

// GrenadeEvent contains the common attributes of nade events. Dispatched when
// the game event fires, which may be before or after the projectile is destroyed.
type GrenadeEvent struct {
	GrenadeType     common.EquipmentElement
	Grenade         *common.GrenadeProjectile // Nil if the projectile entity is unknown
	Position        r3.Vector
	Thrower         *common.Player
	GrenadeEntityID int
}

// HeExplode signals the explosion of a HE.
type HeExplode struct {
	GrenadeEvent
}

// FlashExplode signals the explosion of a Flash.
type FlashExplode struct {
	GrenadeEvent
}

// DecoyStart signals the start of a decoy.
type DecoyStart struct {
	GrenadeEvent
}

// DecoyExpired signals the end of a decoy.
type DecoyExpired struct {
	GrenadeEvent
}

// SmokeStart signals the start of a smoke (pop).
type SmokeStart struct {
	GrenadeEvent
}

// SmokeExpired signals that a smoke as has faded.
type SmokeExpired struct {
	GrenadeEvent
}

// FireGrenadeStart signals the start of a molly/incendiary.
type FireGrenadeStart struct {
	GrenadeEvent
}

// FireGrenadeExpired signals that all fires of a molly/incendiary have extinguished.
type FireGrenadeExpired struct {
	GrenadeEvent
}

// GrenadeProjectileThrow signals that a nade has just been thrown.
type GrenadeProjectileThrow struct {
	Projectile *common.GrenadeProjectile
}

// GrenadeProjectileDestroy signals the destruction of a grenade projectile.
// Trajectory holds every position the projectile was seen at.
type GrenadeProjectileDestroy struct {
	Projectile *common.GrenadeProjectile
}

// InfernoStart signals that the fire of a molotov or incendiary started spreading.
type InfernoStart struct {
	Inferno *common.Inferno
}

// InfernoExpired signals that all fires of an inferno went out.
type InfernoExpired struct {
	Inferno *common.Inferno
}

// GenericGameEvent is dispatched for every game event, handled or not.
// Data maps the descriptor's key names to string, float32, int32, bool or uint64 values.
type GenericGameEvent struct {
	Name string
	Data map[string]any
}

// ParserWarn signals that the parser encountered a problem it could recover from.
type ParserWarn struct {
	Message string
}

// DataTablesParsed signals that the data tables have been parsed and server classes can be queried.
type DataTablesParsed struct{}

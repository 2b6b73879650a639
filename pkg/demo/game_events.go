package demo

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/netmsg"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

func (p *Parser) handleGameEventList(msg *netmsg.GameEventList) {
	p.gameEventDescs = make(map[int32]*netmsg.GameEventDescriptor, len(msg.Descriptors))

	for i := range msg.Descriptors {
		d := &msg.Descriptors[i]
		p.gameEventDescs[d.EventID] = d
	}

	p.logger.WithField("descriptors", len(msg.Descriptors)).Debug("received game event list")
}

func (p *Parser) handleGameEvent(msg *netmsg.GameEvent) {
	desc, ok := p.gameEventDescs[msg.EventID]
	if !ok {
		p.warn(fmt.Sprintf("skipping game event with unknown id %d", msg.EventID))
		return
	}

	data := gameEventData(desc, msg)

	p.dispatch(events.GenericGameEvent{Name: desc.Name, Data: data})

	handler, ok := gameEventHandlers[desc.Name]
	if !ok {
		return
	}

	if err := handler(p, desc.Name, data); err != nil {
		p.warn(errors.Wrapf(err, "game event %q", desc.Name).Error())
	}
}

// gameEventData maps the keys of an event to the names of its descriptor.
func gameEventData(desc *netmsg.GameEventDescriptor, msg *netmsg.GameEvent) map[string]any {
	data := make(map[string]any, len(desc.Keys))

	for i, key := range msg.Keys {
		if i >= len(desc.Keys) {
			break
		}

		data[desc.Keys[i].Name] = gameEventValue(key)
	}

	return data
}

func gameEventValue(key netmsg.GameEventKey) any {
	switch key.Type {
	case netmsg.KeyTypeString:
		return key.ValString
	case netmsg.KeyTypeFloat:
		return key.ValFloat
	case netmsg.KeyTypeLong:
		return key.ValLong
	case netmsg.KeyTypeShort:
		return key.ValShort
	case netmsg.KeyTypeByte:
		return key.ValByte
	case netmsg.KeyTypeBool:
		return key.ValBool
	case netmsg.KeyTypeUint64:
		return key.ValUint64
	case netmsg.KeyTypeWString:
		return string(key.ValWString)
	}
	return nil
}

// gameEventHandler handles the decoded data of a named game event.
type gameEventHandler func(p *Parser, name string, data map[string]any) error

var gameEventHandlers = map[string]gameEventHandler{
	"begin_new_match":              (*Parser).onMatchStart,
	"round_announce_match_started": (*Parser).onMatchStart,
	"round_start":                  (*Parser).onRoundStart,
	"round_freeze_end":             (*Parser).onRoundFreezeEnd,
	"round_end":                    (*Parser).onRoundEnd,
	"round_officially_ended":       (*Parser).onRoundOfficiallyEnded,
	"round_mvp":                    (*Parser).onRoundMVP,
	"player_death":                 (*Parser).onPlayerDeath,
	"player_hurt":                  (*Parser).onPlayerHurt,
	"player_disconnect":            (*Parser).onPlayerDisconnect,
	"player_team":                  (*Parser).onPlayerTeam,
	"weapon_fire":                  (*Parser).onWeaponFire,
	"bot_takeover":                 (*Parser).onBotTakeover,
	"bomb_beginplant":              (*Parser).onBombEvent,
	"bomb_abortplant":              (*Parser).onBombEvent,
	"bomb_planted":                 (*Parser).onBombEvent,
	"bomb_defused":                 (*Parser).onBombEvent,
	"bomb_exploded":                (*Parser).onBombEvent,
	"bomb_begindefuse":             (*Parser).onBombBeginDefuse,
	"bomb_abortdefuse":             (*Parser).onBombAbortDefuse,
	"hostage_follows":              (*Parser).onHostageFollows,
	"hostage_rescued":              (*Parser).onHostageRescued,
	"hegrenade_detonate":           (*Parser).onGrenadeEvent,
	"flashbang_detonate":           (*Parser).onGrenadeEvent,
	"smokegrenade_detonate":        (*Parser).onGrenadeEvent,
	"smokegrenade_expired":         (*Parser).onGrenadeEvent,
	"decoy_started":                (*Parser).onGrenadeEvent,
	"decoy_detonate":               (*Parser).onGrenadeEvent,
	"inferno_startburn":            (*Parser).onGrenadeEvent,
	"inferno_expire":               (*Parser).onGrenadeEvent,
}

func decodeGameEvent(data map[string]any, out any) error {
	return errors.Wrap(mapstructure.WeakDecode(data, out), "failed to decode")
}

type roundStartEvent struct {
	TimeLimit int    `mapstructure:"timelimit"`
	FragLimit int    `mapstructure:"fraglimit"`
	Objective string `mapstructure:"objective"`
}

type roundEndEvent struct {
	Winner  int    `mapstructure:"winner"`
	Reason  int    `mapstructure:"reason"`
	Message string `mapstructure:"message"`
}

type roundMVPEvent struct {
	UserID int `mapstructure:"userid"`
	Reason int `mapstructure:"reason"`
}

type playerDeathEvent struct {
	UserID        int    `mapstructure:"userid"`
	Attacker      int    `mapstructure:"attacker"`
	Assister      int    `mapstructure:"assister"`
	Weapon        string `mapstructure:"weapon"`
	Headshot      bool   `mapstructure:"headshot"`
	Penetrated    int    `mapstructure:"penetrated"`
	NoScope       bool   `mapstructure:"noscope"`
	ThroughSmoke  bool   `mapstructure:"thrusmoke"`
	AttackerBlind bool   `mapstructure:"attackerblind"`
	AssistedFlash bool   `mapstructure:"assistedflash"`
}

type playerHurtEvent struct {
	UserID    int    `mapstructure:"userid"`
	Attacker  int    `mapstructure:"attacker"`
	Health    int    `mapstructure:"health"`
	Armor     int    `mapstructure:"armor"`
	Weapon    string `mapstructure:"weapon"`
	DmgHealth int    `mapstructure:"dmg_health"`
	DmgArmor  int    `mapstructure:"dmg_armor"`
	HitGroup  int    `mapstructure:"hitgroup"`
}

type playerDisconnectEvent struct {
	UserID int    `mapstructure:"userid"`
	Reason string `mapstructure:"reason"`
}

type playerTeamEvent struct {
	UserID  int  `mapstructure:"userid"`
	Team    int  `mapstructure:"team"`
	OldTeam int  `mapstructure:"oldteam"`
	Silent  bool `mapstructure:"silent"`
	IsBot   bool `mapstructure:"isbot"`
}

type weaponFireEvent struct {
	UserID int    `mapstructure:"userid"`
	Weapon string `mapstructure:"weapon"`
}

type bombEvent struct {
	UserID int  `mapstructure:"userid"`
	Site   int  `mapstructure:"site"`
	HasKit bool `mapstructure:"haskit"`
}

type hostageEvent struct {
	UserID  int `mapstructure:"userid"`
	Hostage int `mapstructure:"hostage"`
	Site    int `mapstructure:"site"`
}

type grenadeEvent struct {
	UserID   int     `mapstructure:"userid"`
	EntityID int     `mapstructure:"entityid"`
	X        float64 `mapstructure:"x"`
	Y        float64 `mapstructure:"y"`
	Z        float64 `mapstructure:"z"`
}

type userEvent struct {
	UserID int `mapstructure:"userid"`
}

func (p *Parser) onMatchStart(string, map[string]any) error {
	p.dispatch(events.MatchStart{})
	return nil
}

func (p *Parser) onRoundStart(_ string, data map[string]any) error {
	var e roundStartEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.RoundStart{TimeLimit: e.TimeLimit, FragLimit: e.FragLimit, Objective: e.Objective})

	return nil
}

func (p *Parser) onRoundFreezeEnd(string, map[string]any) error {
	p.freezetimeEnded()
	return nil
}

func (p *Parser) onRoundEnd(_ string, data map[string]any) error {
	var e roundEndEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.roundEnded(events.RoundEnd{
		Message: e.Message,
		Reason:  common.RoundEndReason(e.Reason),
		Winner:  p.gameState.sideOf(e.Winner),
	})

	return nil
}

func (p *Parser) onRoundOfficiallyEnded(string, map[string]any) error {
	p.dispatch(events.RoundEndOfficial{})
	return nil
}

func (p *Parser) onRoundMVP(_ string, data map[string]any) error {
	var e roundMVPEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.RoundMVPAnnouncement{
		Player: p.gameState.playerByUserID(e.UserID),
		Reason: e.Reason,
	})

	return nil
}

func (p *Parser) onPlayerDeath(_ string, data map[string]any) error {
	var e playerDeathEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	gs := p.gameState
	killer := gs.playerByUserID(e.Attacker)

	p.dispatch(events.Kill{
		Victim:            gs.playerByUserID(e.UserID),
		Killer:            killer,
		Assister:          gs.playerByUserID(e.Assister),
		Weapon:            p.attackingWeapon(killer, e.Weapon),
		IsHeadshot:        e.Headshot,
		PenetratedObjects: e.Penetrated,
		NoScope:           e.NoScope,
		ThroughSmoke:      e.ThroughSmoke,
		AttackerBlind:     e.AttackerBlind,
		AssistedFlash:     e.AssistedFlash,
	})

	return nil
}

func (p *Parser) onPlayerHurt(_ string, data map[string]any) error {
	var e playerHurtEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	gs := p.gameState
	attacker := gs.playerByUserID(e.Attacker)

	p.dispatch(events.PlayerHurt{
		Player:       gs.playerByUserID(e.UserID),
		Attacker:     attacker,
		Health:       e.Health,
		Armor:        e.Armor,
		Weapon:       p.attackingWeapon(attacker, e.Weapon),
		HealthDamage: e.DmgHealth,
		ArmorDamage:  e.DmgArmor,
		HitGroup:     e.HitGroup,
	})

	return nil
}

func (p *Parser) onPlayerDisconnect(_ string, data map[string]any) error {
	var e playerDisconnectEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	pl := p.gameState.playerByUserID(e.UserID)
	if pl == nil {
		return errors.Errorf("unknown player with user id %d", e.UserID)
	}

	p.disconnectPlayer(pl, e.Reason)

	return nil
}

func (p *Parser) onPlayerTeam(_ string, data map[string]any) error {
	var e playerTeamEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	pl := p.gameState.playerByUserID(e.UserID)
	if pl == nil {
		// the userinfo entry may arrive later
		return nil
	}

	p.dispatch(events.PlayerTeamChange{
		Player:  pl,
		NewTeam: p.gameState.sideOf(e.Team),
		OldTeam: p.gameState.sideOf(e.OldTeam),
		Silent:  e.Silent,
		IsBot:   e.IsBot,
	})

	return nil
}

func (p *Parser) onWeaponFire(_ string, data map[string]any) error {
	var e weaponFireEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	shooter := p.gameState.playerByUserID(e.UserID)

	p.dispatch(events.WeaponFire{Shooter: shooter, Weapon: p.attackingWeapon(shooter, e.Weapon)})

	return nil
}

func (p *Parser) onBotTakeover(_ string, data map[string]any) error {
	var e userEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.BotTakenOver{Taker: p.gameState.playerByUserID(e.UserID)})

	return nil
}

func (p *Parser) onBombEvent(name string, data map[string]any) error {
	var e bombEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	be := events.BombEvent{
		Player: p.gameState.playerByUserID(e.UserID),
		Site:   p.gameState.bombsiteByTrigger(e.Site),
	}

	switch name {
	case "bomb_beginplant":
		p.dispatch(events.BombPlantBegin{BombEvent: be})
	case "bomb_abortplant":
		p.dispatch(events.BombPlantAborted{BombEvent: be})
	case "bomb_planted":
		p.dispatch(events.BombPlanted{BombEvent: be})
	case "bomb_defused":
		p.dispatch(events.BombDefused{BombEvent: be})
	case "bomb_exploded":
		p.dispatch(events.BombExplode{BombEvent: be})
	}

	return nil
}

func (p *Parser) onBombBeginDefuse(_ string, data map[string]any) error {
	var e bombEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.BombDefuseStart{Player: p.gameState.playerByUserID(e.UserID), HasKit: e.HasKit})

	return nil
}

func (p *Parser) onBombAbortDefuse(_ string, data map[string]any) error {
	var e userEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.BombDefuseAborted{Player: p.gameState.playerByUserID(e.UserID)})

	return nil
}

func (p *Parser) onHostageFollows(_ string, data map[string]any) error {
	var e hostageEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.HostagePickedUp{Player: p.gameState.playerByUserID(e.UserID), HostageEntityID: e.Hostage})

	return nil
}

func (p *Parser) onHostageRescued(_ string, data map[string]any) error {
	var e hostageEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	p.dispatch(events.HostageRescued{
		Player:          p.gameState.playerByUserID(e.UserID),
		HostageEntityID: e.Hostage,
		Site:            e.Site,
	})

	return nil
}

var grenadeEventTypes = map[string]common.EquipmentElement{
	"hegrenade_detonate":    common.EqHE,
	"flashbang_detonate":    common.EqFlash,
	"smokegrenade_detonate": common.EqSmoke,
	"smokegrenade_expired":  common.EqSmoke,
	"decoy_started":         common.EqDecoy,
	"decoy_detonate":        common.EqDecoy,
	"inferno_startburn":     common.EqIncendiary,
	"inferno_expire":        common.EqIncendiary,
}

func (p *Parser) onGrenadeEvent(name string, data map[string]any) error {
	var e grenadeEvent
	if err := decodeGameEvent(data, &e); err != nil {
		return err
	}

	ge := events.GrenadeEvent{
		GrenadeType:     grenadeEventTypes[name],
		Grenade:         p.gameState.grenadeProjectiles[e.EntityID],
		Position:        r3.Vector{X: e.X, Y: e.Y, Z: e.Z},
		Thrower:         p.gameState.playerByUserID(e.UserID),
		GrenadeEntityID: e.EntityID,
	}

	if ge.Grenade != nil {
		ge.GrenadeType = ge.Grenade.Weapon
	}

	switch name {
	case "hegrenade_detonate":
		p.dispatch(events.HeExplode{GrenadeEvent: ge})
	case "flashbang_detonate":
		p.dispatch(events.FlashExplode{GrenadeEvent: ge})
	case "smokegrenade_detonate":
		p.dispatch(events.SmokeStart{GrenadeEvent: ge})
	case "smokegrenade_expired":
		p.dispatch(events.SmokeExpired{GrenadeEvent: ge})
	case "decoy_started":
		p.dispatch(events.DecoyStart{GrenadeEvent: ge})
	case "decoy_detonate":
		p.dispatch(events.DecoyExpired{GrenadeEvent: ge})
	case "inferno_startburn":
		p.dispatch(events.FireGrenadeStart{GrenadeEvent: ge})
	case "inferno_expire":
		p.dispatch(events.FireGrenadeExpired{GrenadeEvent: ge})
	}

	return nil
}

// attackingWeapon finds the weapon named in an event in the inventory of the attacker.
// Thrown grenades and world damage are no longer owned, they get a fresh equipment.
func (p *Parser) attackingWeapon(attacker *common.Player, name string) *common.Equipment {
	wep := common.MapEquipment(name)

	if attacker != nil && wep != common.EqUnknown {
		if active := attacker.ActiveWeapon(); active != nil && common.SameServerClass(active.Weapon, wep) {
			return active
		}

		for _, eq := range attacker.Weapons() {
			if common.SameServerClass(eq.Weapon, wep) {
				return eq
			}
		}
	}

	return common.NewEquipment(name)
}

type roundTracker struct {
	played int
	// freeze time is over and the round has not ended yet
	inProgress bool
}

func (p *Parser) freezetimeEnded() {
	rt := &p.gameState.rounds

	if rt.inProgress {
		p.warn("round ended without round_end, synthesizing it")
		p.endRound(events.RoundEnd{Reason: common.RoundEndReasonUnknown})
	}

	rt.inProgress = true
	p.dispatch(events.RoundFreezetimeEnd{TimeEnd: p.CurrentTime()})
}

func (p *Parser) roundEnded(e events.RoundEnd) {
	if !p.gameState.rounds.inProgress {
		p.dispatch(events.RoundFreezetimeEnd{TimeEnd: -1})
	}

	p.endRound(e)
}

func (p *Parser) endRound(e events.RoundEnd) {
	rt := &p.gameState.rounds
	rt.inProgress = false
	rt.played++

	p.logger.WithFields(logrus.Fields{
		"round":  rt.played,
		"winner": e.Winner,
		"reason": e.Reason,
	}).Debug("round ended")

	p.dispatch(e)
}

package demo

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/internal/sendtables"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

const (
	maxWeapons      = 64
	maxInfernoFires = 100

	// Source world extent, cell coordinates are relative to -maxCoordInteger.
	maxCoordInteger = 16384
)

var rescueZoneClasses = map[string]bool{
	"CHostageRescueZone": true,
	"CFuncHostageRescue": true,
	"CDangerZone":        true,
}

func isClassOrSubclass(sc *sendtables.ServerClass, name string) bool {
	return sc.Name() == name || sc.HasBaseClass(name)
}

// bindEntities registers entity-created hooks on the server classes the game state is built from.
func (p *Parser) bindEntities() {
	for _, sc := range p.stParser.ServerClasses() {
		switch {
		case sc.Name() == "CCSTeam":
			sc.OnEntityCreated(p.bindTeam)

		case sc.Name() == "CCSPlayer":
			p.playerBindings = p.checkPlayerBindings(sc)
			sc.OnEntityCreated(p.bindPlayerEntity)

		case sc.Name() == "CCSPlayerResource":
			sc.OnEntityCreated(p.bindPlayerResource)

		case sc.Name() == "CInferno":
			sc.OnEntityCreated(p.bindInferno)

		case rescueZoneClasses[sc.Name()]:
			sc.OnEntityCreated(func(entity *sendtables.Entity) {
				p.bindZone(entity, true)
			})

		case isClassOrSubclass(sc, "CBaseTrigger"):
			sc.OnEntityCreated(func(entity *sendtables.Entity) {
				p.bindZone(entity, false)
			})

		case isClassOrSubclass(sc, "CBaseCSGrenadeProjectile"):
			sc.OnEntityCreated(p.bindGrenadeProjectile)

		case sc.HasBaseClass("CWeaponCSBase"):
			name := equipmentName(sc)

			p.logger.WithFields(logrus.Fields{
				"class":     sc.Name(),
				"equipment": common.MapEquipment(name).String(),
			}).Debug("mapped weapon class")

			sc.OnEntityCreated(func(entity *sendtables.Entity) {
				p.bindWeapon(entity, name)
			})
		}
	}
}

// property binds to the named property if the entity has it.
func property(entity *sendtables.Entity, name string, bind func(prop *sendtables.Property)) {
	if prop := entity.Property(name); prop != nil {
		bind(prop)
	}
}

func teamSideFromName(name string) common.Team {
	switch name {
	case "CT":
		return common.TeamCounterTerrorists
	case "TERRORIST":
		return common.TeamTerrorists
	case "Spectator":
		return common.TeamSpectators
	}
	return common.TeamUnassigned
}

func (p *Parser) bindTeam(entity *sendtables.Entity) {
	gs := p.gameState

	var (
		teamNum = -1
		side    common.Team
	)

	// Name and number arrive in any order, the mapping exists once both are known.
	updateMapping := func() {
		state := gs.Team(side)
		if state == nil || teamNum < 0 {
			return
		}

		state.ID = teamNum
		gs.teamSides[teamNum] = side

		if val, ok := entity.PropertyValue("m_scoreTotal"); ok {
			state.Score = val.IntVal
		}

		if val, ok := entity.PropertyValue("m_szClanTeamname"); ok {
			state.ClanName = val.StringVal
		}

		for _, pl := range gs.playersByUserID {
			pl.Team = gs.sideOf(pl.TeamID)
		}
	}

	property(entity, "m_szTeamname", func(prop *sendtables.Property) {
		prop.OnStringUpdate(func(_, name string) {
			side = teamSideFromName(name)
			updateMapping()
		})
	})

	property(entity, "m_iTeamNum", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(_, num int) {
			teamNum = num
			updateMapping()
		})
	})

	property(entity, "m_scoreTotal", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(old, val int) {
			state := gs.Team(side)
			if state == nil || teamNum < 0 {
				return
			}

			state.Score = val

			if old != val {
				p.dispatch(events.ScoreUpdated{OldScore: old, NewScore: val, TeamState: state})
			}
		})
	})

	property(entity, "m_szClanTeamname", func(prop *sendtables.Property) {
		prop.OnStringUpdate(func(_, name string) {
			if state := gs.Team(side); state != nil {
				state.ClanName = name
			}
		})
	})
}

type playerPropertyBinding struct {
	name  string
	kind  sendtables.PropertyType
	apply func(p *Parser, pl *common.Player, old, val sendtables.PropertyValue)
}

var playerBindings = newPlayerBindings()

func newPlayerBindings() []playerPropertyBinding {
	setXY := func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
		pl.Position.X = val.VectorVal.X
		pl.Position.Y = val.VectorVal.Y

		if pl.IsAlive() {
			pl.LastAlivePosition = pl.Position
		}
	}

	setZ := func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
		pl.Position.Z = float64(val.FloatVal)

		if pl.IsAlive() {
			pl.LastAlivePosition = pl.Position
		}
	}

	intField := func(field func(pl *common.Player) *int) func(*Parser, *common.Player, sendtables.PropertyValue, sendtables.PropertyValue) {
		return func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			*field(pl) = val.IntVal
		}
	}

	boolField := func(field func(pl *common.Player) *bool) func(*Parser, *common.Player, sendtables.PropertyValue, sendtables.PropertyValue) {
		return func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			*field(pl) = val.IntVal == 1
		}
	}

	bindings := []playerPropertyBinding{
		{"cslocaldata.m_vecOrigin", sendtables.PropTypeVectorXY, setXY},
		{"csnonlocaldata.m_vecOrigin", sendtables.PropTypeVectorXY, setXY},
		{"cslocaldata.m_vecOrigin[2]", sendtables.PropTypeFloat, setZ},
		{"csnonlocaldata.m_vecOrigin[2]", sendtables.PropTypeFloat, setZ},
		{"localdata.m_vecVelocity[0]", sendtables.PropTypeFloat, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.Velocity.X = float64(val.FloatVal)
		}},
		{"localdata.m_vecVelocity[1]", sendtables.PropTypeFloat, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.Velocity.Y = float64(val.FloatVal)
		}},
		{"localdata.m_vecVelocity[2]", sendtables.PropTypeFloat, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.Velocity.Z = float64(val.FloatVal)
		}},
		{"m_angEyeAngles[0]", sendtables.PropTypeFloat, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.ViewDirectionY = val.FloatVal
		}},
		{"m_angEyeAngles[1]", sendtables.PropTypeFloat, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.ViewDirectionX = val.FloatVal
		}},
		{"m_iHealth", sendtables.PropTypeInt, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.Hp = val.IntVal

			if pl.IsAlive() {
				pl.LastAlivePosition = pl.Position
			}
		}},
		{"m_ArmorValue", sendtables.PropTypeInt, intField(func(pl *common.Player) *int { return &pl.Armor })},
		{"m_iAccount", sendtables.PropTypeInt, intField(func(pl *common.Player) *int { return &pl.Money })},
		{"m_unCurrentEquipmentValue", sendtables.PropTypeInt, intField(func(pl *common.Player) *int { return &pl.CurrentEquipmentValue })},
		{"m_unRoundStartEquipmentValue", sendtables.PropTypeInt, intField(func(pl *common.Player) *int { return &pl.RoundStartEquipmentValue })},
		{"m_unFreezetimeEndEquipmentValue", sendtables.PropTypeInt, intField(func(pl *common.Player) *int { return &pl.FreezetimeEndEquipmentValue })},
		{"m_bHasHelmet", sendtables.PropTypeInt, boolField(func(pl *common.Player) *bool { return &pl.HasHelmet })},
		{"m_bHasDefuser", sendtables.PropTypeInt, boolField(func(pl *common.Player) *bool { return &pl.HasDefuseKit })},
		{"localdata.m_Local.m_bDucking", sendtables.PropTypeInt, boolField(func(pl *common.Player) *bool { return &pl.IsDucking })},
		{"m_iTeamNum", sendtables.PropTypeInt, func(p *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.TeamID = val.IntVal
			pl.Team = p.gameState.sideOf(val.IntVal)
		}},
		{"m_flFlashDuration", sendtables.PropTypeFloat, func(p *Parser, pl *common.Player, old, val sendtables.PropertyValue) {
			pl.FlashDuration = val.FloatVal

			if val.FloatVal > old.FloatVal {
				p.dispatch(events.PlayerFlashed{Player: pl, Duration: val.FloatVal})
			}
		}},
		{"m_hActiveWeapon", sendtables.PropTypeInt, func(_ *Parser, pl *common.Player, _, val sendtables.PropertyValue) {
			pl.ActiveWeaponID = val.IntVal & common.EntityHandleIndexMask
		}},
	}

	for i := 0; i < maxWeapons; i++ {
		bindings = append(bindings, playerPropertyBinding{
			name:  fmt.Sprintf("m_hMyWeapons.%03d", i),
			kind:  sendtables.PropTypeInt,
			apply: (*Parser).setWeaponSlot,
		})
	}

	return bindings
}

func (p *Parser) setWeaponSlot(pl *common.Player, old, val sendtables.PropertyValue) {
	oldID := common.EntityIDFromHandle(old.IntVal)
	newID := common.EntityIDFromHandle(val.IntVal)

	if oldID > 0 && oldID != newID {
		delete(pl.RawWeapons, oldID)
	}

	if newID > 0 {
		if wep := p.gameState.weapons[newID]; wep != nil {
			pl.RawWeapons[newID] = wep
			wep.OwnerEntityID = pl.EntityID
		}
	}
}

// checkPlayerBindings drops the player bindings whose property has an unexpected wire type.
func (p *Parser) checkPlayerBindings(sc *sendtables.ServerClass) []playerPropertyBinding {
	props := sc.FlattenedProps()
	res := make([]playerPropertyBinding, 0, len(playerBindings))

	for _, b := range playerBindings {
		if i := sc.PropertyIndex(b.name); i >= 0 {
			if t := props[i].Prop().RawType; t != b.kind {
				p.warn(fmt.Sprintf("player property %s is networked as %s, expected %s", b.name, t, b.kind))
				continue
			}
		}

		res = append(res, b)
	}

	return res
}

// bindPlayerEntity forwards property changes to whichever player currently occupies the entity slot.
// The slot may be empty until the userinfo table announces its player.
func (p *Parser) bindPlayerEntity(entity *sendtables.Entity) {
	gs := p.gameState
	id := entity.ID()

	gs.playerEntities[id] = entity

	for _, b := range p.playerBindings {
		b := b
		apply := b.apply

		property(entity, b.name, func(prop *sendtables.Property) {
			prop.OnUpdateOf(b.kind, func(old, val sendtables.PropertyValue) {
				if pl := gs.playersByEntityID[id]; pl != nil {
					apply(p, pl, old, val)
				}
			})
		})
	}

	entity.OnDestroy(func() {
		if gs.playerEntities[id] == entity {
			delete(gs.playerEntities, id)
		}
	})
}

// syncPlayerEntity copies the current entity state to a player that just took over an entity slot.
func (p *Parser) syncPlayerEntity(pl *common.Player) {
	entity := p.gameState.playerEntities[pl.EntityID]
	if entity == nil {
		return
	}

	for _, b := range p.playerBindings {
		if val, ok := entity.PropertyValue(b.name); ok {
			b.apply(p, pl, val, val)
		}
	}
}

func (p *Parser) bindPlayerResource(entity *sendtables.Entity) {
	centers := map[string]common.Bombsite{
		"m_bombsiteCenterA": common.BombsiteA,
		"m_bombsiteCenterB": common.BombsiteB,
	}

	for name, site := range centers {
		site := site
		property(entity, name, func(prop *sendtables.Property) {
			prop.OnVectorUpdate(func(_, center r3.Vector) {
				p.gameState.bombsiteCenters[site] = center
			})
		})
	}
}

// bindZone tracks trigger boxes. Rescue zones are relative to the entity origin,
// other triggers use absolute world coordinates.
func (p *Parser) bindZone(entity *sendtables.Entity, rescue bool) {
	gs := p.gameState
	id := entity.ID()

	var mins, maxs r3.Vector

	update := func() {
		if rescue {
			origin := entityPosition(entity)
			gs.rescueZones[id] = common.Zone{EntityID: id, Min: mins.Add(origin), Max: maxs.Add(origin)}
		} else {
			gs.triggers[id] = common.Zone{EntityID: id, Min: mins, Max: maxs}
		}
	}

	property(entity, "m_Collision.m_vecMins", func(prop *sendtables.Property) {
		prop.OnVectorUpdate(func(_, val r3.Vector) {
			mins = val
			update()
		})
	})

	property(entity, "m_Collision.m_vecMaxs", func(prop *sendtables.Property) {
		prop.OnVectorUpdate(func(_, val r3.Vector) {
			maxs = val
			update()
		})
	})

	if rescue {
		property(entity, "m_vecOrigin", func(prop *sendtables.Property) {
			prop.OnVectorUpdate(func(_, _ r3.Vector) {
				update()
			})
		})

		for _, name := range cellProps {
			property(entity, name, func(prop *sendtables.Property) {
				prop.OnIntUpdate(func(_, _ int) {
					update()
				})
			})
		}
	}

	entity.OnDestroy(func() {
		delete(gs.triggers, id)
		delete(gs.rescueZones, id)
	})
}

// equipmentName derives the equipment name of a weapon class.
func equipmentName(sc *sendtables.ServerClass) string {
	switch {
	case sc.Name() == "CC4":
		return "c4"
	case isClassOrSubclass(sc, "CKnife"):
		return "knife"
	case sc.HasBaseClass("CWeaponCSBaseGun"):
		return strings.ToLower(strings.TrimPrefix(sc.DataTableName(), "DT_Weapon"))
	case sc.HasBaseClass("CBaseCSGrenade"):
		return strings.ToLower(strings.TrimPrefix(sc.DataTableName(), "DT_"))
	}
	return strings.ToLower(strings.TrimPrefix(sc.Name(), "CWeapon"))
}

func (p *Parser) bindWeapon(entity *sendtables.Entity, name string) {
	gs := p.gameState
	id := entity.ID()

	eq := common.NewEquipment(name)
	eq.EntityID = id
	gs.weapons[id] = eq

	property(entity, "m_iClip1", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(_, val int) {
			// clip values are networked with an offset of one
			eq.AmmoInMagazine = val - 1
		})
	})

	property(entity, "LocalWeaponData.m_iPrimaryAmmoType", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(_, val int) {
			eq.AmmoType = val
		})
	})

	property(entity, "m_hOwnerEntity", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(old, val int) {
			p.setWeaponOwner(eq, common.EntityIDFromHandle(old), common.EntityIDFromHandle(val))
		})
	})

	if common.IsAmbiguous(eq.Weapon) {
		property(entity, "m_nModelIndex", func(prop *sendtables.Property) {
			created := false

			prop.OnIntUpdate(func(_, val int) {
				if created {
					p.disambiguateWeapon(eq, val)
				}
			})

			entity.OnCreateFinished(func() {
				created = true
				p.disambiguateWeapon(eq, prop.Value().IntVal)
			})
		})
	}

	entity.OnDestroy(func() {
		if owner := gs.playersByEntityID[eq.OwnerEntityID]; owner != nil {
			delete(owner.RawWeapons, id)
		}

		if gs.weapons[id] == eq {
			delete(gs.weapons, id)
		}
	})
}

func (p *Parser) setWeaponOwner(eq *common.Equipment, oldOwner, newOwner int) {
	gs := p.gameState

	if newOwner <= 0 {
		newOwner = -1
	}

	if oldOwner != newOwner {
		if prev := gs.playersByEntityID[oldOwner]; prev != nil {
			delete(prev.RawWeapons, eq.EntityID)
		}
	}

	eq.OwnerEntityID = newOwner

	if owner := gs.playersByEntityID[newOwner]; owner != nil {
		owner.RawWeapons[eq.EntityID] = eq
	}
}

// disambiguateWeapon resolves weapons sharing a server class through the model precache.
func (p *Parser) disambiguateWeapon(eq *common.Equipment, modelIndex int) {
	model := p.modelPreCache[modelIndex]

	wep, ok := common.DisambiguateByModel(eq.Weapon, model)
	if !ok {
		err := errors.Wrapf(ErrUnknownWeaponModel, "model %q (index %d) of %s entity %d", model, modelIndex, eq.Weapon, eq.EntityID)

		if p.config.IgnoreUnknownWeaponModels {
			p.warn(err.Error())
		} else {
			p.setError(err)
		}

		return
	}

	eq.Weapon = wep
	eq.OriginalString = model
}

var grenadeProjectileClasses = map[string]common.EquipmentElement{
	"CBaseCSGrenadeProjectile": common.EqHE,
	"CSmokeGrenadeProjectile":  common.EqSmoke,
	"CDecoyProjectile":         common.EqDecoy,
	"CMolotovProjectile":       common.EqMolotov,
}

// Flashbangs and HEs share a class, incendiaries and molotovs too.
var grenadeModels = []struct {
	fragment string
	weapon   common.EquipmentElement
}{
	{"flashbang", common.EqFlash},
	{"fraggrenade", common.EqHE},
	{"smokegrenade", common.EqSmoke},
	{"decoy", common.EqDecoy},
	{"incendiarygrenade", common.EqIncendiary},
	{"molotov", common.EqMolotov},
}

func (p *Parser) grenadeTypeFromModel(modelIndex int, fallback common.EquipmentElement) common.EquipmentElement {
	model := p.modelPreCache[modelIndex]

	for _, m := range grenadeModels {
		if strings.Contains(model, m.fragment) {
			return m.weapon
		}
	}

	return fallback
}

var cellProps = []string{"m_cellbits", "m_cellX", "m_cellY", "m_cellZ"}

// entityPosition returns the world position of an entity networked in cell coordinates.
func entityPosition(entity *sendtables.Entity) r3.Vector {
	origin, _ := entity.PropertyValue("m_vecOrigin")

	cellBits, ok := entity.PropertyValue("m_cellbits")
	if !ok {
		return origin.VectorVal
	}

	cellWidth := 1 << uint(cellBits.IntVal)
	coord := func(cellProp string, offset float64) float64 {
		cell, _ := entity.PropertyValue(cellProp)
		return float64(cell.IntVal*cellWidth-maxCoordInteger) + offset
	}

	return r3.Vector{
		X: coord("m_cellX", origin.VectorVal.X),
		Y: coord("m_cellY", origin.VectorVal.Y),
		Z: coord("m_cellZ", origin.VectorVal.Z),
	}
}

func (p *Parser) bindGrenadeProjectile(entity *sendtables.Entity) {
	gs := p.gameState
	id := entity.ID()

	proj := common.NewGrenadeProjectile(id)
	proj.Weapon = grenadeProjectileClasses[entity.ServerClass().Name()]
	gs.grenadeProjectiles[id] = proj

	created := false

	property(entity, "m_hThrower", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(_, val int) {
			proj.Thrower = gs.playersByEntityID[common.EntityIDFromHandle(val)]
		})
	})

	property(entity, "m_vecOrigin", func(prop *sendtables.Property) {
		prop.OnVectorUpdate(func(_, _ r3.Vector) {
			if created {
				proj.Position = entityPosition(entity)
				proj.Trajectory = append(proj.Trajectory, proj.Position)
			}
		})
	})

	entity.OnCreateFinished(func() {
		created = true

		if val, ok := entity.PropertyValue("m_nModelIndex"); ok {
			proj.Weapon = p.grenadeTypeFromModel(val.IntVal, proj.Weapon)
		}

		proj.Position = entityPosition(entity)
		proj.Trajectory = append(proj.Trajectory, proj.Position)

		p.dispatch(events.GrenadeProjectileThrow{Projectile: proj})
	})

	entity.OnDestroy(func() {
		if gs.grenadeProjectiles[id] == proj {
			delete(gs.grenadeProjectiles, id)
		}

		p.dispatch(events.GrenadeProjectileDestroy{Projectile: proj})
	})
}

func (p *Parser) bindInferno(entity *sendtables.Entity) {
	gs := p.gameState
	id := entity.ID()

	inf := common.NewInferno(id)
	gs.infernos[id] = inf
	gs.infernoEntities[id] = entity

	property(entity, "m_hOwnerEntity", func(prop *sendtables.Property) {
		prop.OnIntUpdate(func(_, val int) {
			inf.Thrower = gs.playersByEntityID[common.EntityIDFromHandle(val)]
		})
	})

	entity.OnCreateFinished(func() {
		updateInfernoFires(entity, inf)
		p.dispatch(events.InfernoStart{Inferno: inf})
	})

	entity.OnDestroy(func() {
		delete(gs.infernos, id)
		delete(gs.infernoEntities, id)
		p.dispatch(events.InfernoExpired{Inferno: inf})
	})
}

// updateInfernoFires rebuilds the fire list from the delta arrays of the inferno entity.
func updateInfernoFires(entity *sendtables.Entity, inf *common.Inferno) {
	count, _ := entity.PropertyValue("m_fireCount")
	n := count.IntVal
	if n > maxInfernoFires {
		n = maxInfernoFires
	}

	origin := entityPosition(entity)
	fires := inf.Fires[:0]

	for i := 0; i < n; i++ {
		dx, _ := entity.PropertyValue(fmt.Sprintf("m_fireXDelta.%03d", i))
		dy, _ := entity.PropertyValue(fmt.Sprintf("m_fireYDelta.%03d", i))
		dz, _ := entity.PropertyValue(fmt.Sprintf("m_fireZDelta.%03d", i))
		burning, _ := entity.PropertyValue(fmt.Sprintf("m_bFireIsBurning.%03d", i))

		fires = append(fires, common.Fire{
			Vector:    origin.Add(r3.Vector{X: float64(dx.IntVal), Y: float64(dy.IntVal), Z: float64(dz.IntVal)}),
			IsBurning: burning.IntVal == 1,
		})
	}

	inf.Fires = fires
}

package common

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoHeader_TickRate(t *testing.T) {
	h := DemoHeader{PlaybackTime: 60, PlaybackFrames: 7680}

	assert.Equal(t, 128.0, h.TickRate())
	assert.Equal(t, 1.0/128, h.TickTime())

	assert.Zero(t, DemoHeader{}.TickRate())
	assert.Zero(t, DemoHeader{}.TickTime())
}

func TestDemoHeader_Validate(t *testing.T) {
	valid := DemoHeader{Filestamp: DemoFilestamp, Protocol: DemoProtocol, GameDirectory: GameDirectory}
	assert.NoError(t, valid.Validate())

	err := DemoHeader{Filestamp: "PBDEMS2", Protocol: 3, GameDirectory: "csgo"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PBDEMS2")
	assert.Contains(t, err.Error(), "protocol 3")
	assert.NotContains(t, err.Error(), "game directory")
}

func TestTeamFromNumber(t *testing.T) {
	assert.Equal(t, TeamTerrorists, TeamFromNumber(2))
	assert.Equal(t, TeamCounterTerrorists, TeamFromNumber(3))
	assert.Equal(t, TeamUnassigned, TeamFromNumber(17))
	assert.Equal(t, "CounterTerrorists", TeamCounterTerrorists.String())
}

func TestEntityIDFromHandle(t *testing.T) {
	assert.Equal(t, 42, EntityIDFromHandle(3<<11|42))
	assert.Equal(t, -1, EntityIDFromHandle(EntityHandleIndexMask))
}

func TestPlayer_Weapons(t *testing.T) {
	pl := NewPlayer()
	assert.Nil(t, pl.ActiveWeapon())

	ak := NewEquipment("weapon_ak47")
	ak.EntityID = 90
	knife := NewEquipment("knife_t")
	knife.EntityID = 80

	pl.RawWeapons[ak.EntityID] = ak
	pl.RawWeapons[knife.EntityID] = knife
	pl.ActiveWeaponID = 90

	assert.Equal(t, ak, pl.ActiveWeapon())
	assert.Equal(t, []*Equipment{knife, ak}, pl.Weapons())
}

func TestMapEquipment(t *testing.T) {
	assert.Equal(t, EqAK47, MapEquipment("weapon_ak47"))
	assert.Equal(t, EqHE, MapEquipment("HEGrenade"))
	assert.Equal(t, EqKnife, MapEquipment("knife_karambit"))
	assert.Equal(t, EqKnife, MapEquipment("bayonet"))
	assert.Equal(t, EqUnknown, MapEquipment("banana"))

	assert.Equal(t, "UNKNOWN", EquipmentElement(999).String())
}

func TestEquipmentElement_Class(t *testing.T) {
	assert.Equal(t, EqClassPistols, EqP2000.Class())
	assert.Equal(t, EqClassPistols, EqRevolver.Class())
	assert.Equal(t, EqClassSMG, EqMP7.Class())
	assert.Equal(t, EqClassHeavy, EqNegev.Class())
	assert.Equal(t, EqClassRifle, EqAK47.Class())
	assert.Equal(t, EqClassGrenade, EqHE.Class())

	// element 0 is not special cased
	assert.Equal(t, EqClassPistols, EqUnknown.Class())
}

func TestDisambiguateByModel(t *testing.T) {
	wep, ok := DisambiguateByModel(EqUSP, "models/weapons/v_pist_hkp2000.mdl")
	assert.True(t, ok)
	assert.Equal(t, EqP2000, wep)

	wep, ok = DisambiguateByModel(EqM4A4, "models/weapons/w_rif_m4a1_s.mdl")
	assert.True(t, ok)
	assert.Equal(t, EqM4A1, wep)

	_, ok = DisambiguateByModel(EqUSP, "models/weapons/v_rif_ak47.mdl")
	assert.False(t, ok)

	assert.True(t, IsAmbiguous(EqCZ))
	assert.False(t, IsAmbiguous(EqAK47))
	assert.True(t, SameServerClass(EqDeagle, EqRevolver))
	assert.False(t, SameServerClass(EqDeagle, EqP250))
}

func TestNewEquipment_UniqueID(t *testing.T) {
	a := NewEquipment("ak47")
	b := NewEquipment("ak47")

	assert.NotEqual(t, a.UniqueID, b.UniqueID)
	assert.Equal(t, -1, a.OwnerEntityID)
	assert.Equal(t, "AK-47", a.String())
}

func TestZone_Contains(t *testing.T) {
	z := Zone{Min: r3.Vector{X: -10, Y: -10, Z: 0}, Max: r3.Vector{X: 10, Y: 10, Z: 100}}

	assert.True(t, z.Contains(r3.Vector{X: 10, Y: 0, Z: 50}))
	assert.False(t, z.Contains(r3.Vector{X: 0, Y: 0, Z: -1}))
}

func TestInferno_ConvexHull2D(t *testing.T) {
	inf := NewInferno(1)
	inf.Fires = []Fire{
		{Vector: r3.Vector{X: 0, Y: 0, Z: 5}, IsBurning: true},
		{Vector: r3.Vector{X: 10, Y: 0}, IsBurning: true},
		{Vector: r3.Vector{X: 10, Y: 10}, IsBurning: true},
		{Vector: r3.Vector{X: 0, Y: 10}, IsBurning: true},
		{Vector: r3.Vector{X: 5, Y: 5}, IsBurning: true},
		{Vector: r3.Vector{X: 50, Y: 50}, IsBurning: false},
	}

	assert.Len(t, inf.Active(), 5)

	hull := inf.ConvexHull2D()
	assert.ElementsMatch(t, []r2.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}, hull)

	inf.Fires = inf.Fires[:2]
	assert.Len(t, inf.ConvexHull2D(), 2)
}

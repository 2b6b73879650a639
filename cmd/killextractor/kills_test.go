package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualitycsgo1/csgodemo/pkg/demo"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

func TestCalculateAngleDifference(t *testing.T) {
	assert.Equal(t, 20.0, calculateAngleDifference(350, 10))
	assert.Equal(t, 20.0, calculateAngleDifference(10, 350))
	assert.Equal(t, 90.0, calculateAngleDifference(45, 135))
	assert.Zero(t, calculateAngleDifference(180, 180))
}

func TestCalculateDistance(t *testing.T) {
	assert.Equal(t, 5.0, calculateDistance(r3.Vector{X: 3, Y: 4}, r3.Vector{}))
}

func TestNewKillEvent(t *testing.T) {
	killer := common.NewPlayer()
	killer.Name = "Alice"
	killer.SteamID64 = 76561198000000001
	killer.Team = common.TeamTerrorists
	killer.Position = r3.Vector{X: 100}
	killer.ViewDirectionX = 170

	victim := common.NewPlayer()
	victim.Name = "Bob"
	victim.Team = common.TeamCounterTerrorists
	victim.ViewDirectionX = -170

	kill, ok := newKillEvent(events.Kill{
		Killer:     killer,
		Victim:     victim,
		Weapon:     common.NewEquipment("ak47"),
		IsHeadshot: true,
	}, killContext{tick: 4200, mapName: "de_mirage", round: 7, demoFile: "match.dem"})
	require.True(t, ok)

	assert.Equal(t, KillEvent{
		Tick:            4200,
		AttackerName:    "Alice",
		AttackerSteamID: "76561198000000001",
		AttackerPos:     Position{X: 100},
		VictimName:      "Bob",
		VictimSteamID:   "0",
		Weapon:          "AK-47",
		IsHeadshot:      true,
		AttackerTeam:    "T",
		VictimTeam:      "CT",
		MapName:         "de_mirage",
		RoundNumber:     7,
		Distance:        100,
		AngleDiff:       20,
		AttackerViewX:   170,
		VictimViewX:     -170,
		DemoFile:        "match.dem",
	}, kill)
}

func TestNewKillEvent_WorldKill(t *testing.T) {
	_, ok := newKillEvent(events.Kill{Victim: common.NewPlayer()}, killContext{})

	assert.False(t, ok)
}

func TestParseDemoFile_Invalid(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := demo.ParserConfig{Logger: logger}

	t.Run("missing", func(t *testing.T) {
		res := parseDemoFile(context.Background(), filepath.Join(t.TempDir(), "missing.dem"), cfg)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "failed to open demo file")
		assert.Equal(t, "missing.dem", res.DemoFile)
		assert.NotNil(t, res.Kills)
	})

	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "truncated.dem")
		require.NoError(t, os.WriteFile(path, []byte("HL2DEMO\x00\x04"), 0o600))

		res := parseDemoFile(context.Background(), path, cfg)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "error parsing demo")
	})
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dualitycsgo1/csgodemo/pkg/demo"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/events"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func newPosition(v r3.Vector) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

type KillEvent struct {
	Tick            int      `json:"tick"`
	AttackerName    string   `json:"attacker_name"`
	AttackerSteamID string   `json:"attacker_steam_id"`
	AttackerPos     Position `json:"attacker_pos"`
	VictimName      string   `json:"victim_name"`
	VictimSteamID   string   `json:"victim_steam_id"`
	VictimPos       Position `json:"victim_pos"`
	AssisterName    string   `json:"assister_name,omitempty"`
	Weapon          string   `json:"weapon"`
	IsHeadshot      bool     `json:"is_headshot"`
	ThroughSmoke    bool     `json:"through_smoke"`
	Penetrated      int      `json:"penetrated"`
	AttackerTeam    string   `json:"attacker_team"`
	VictimTeam      string   `json:"victim_team"`
	MapName         string   `json:"map_name"`
	RoundNumber     int      `json:"round_number"`
	Distance        float64  `json:"distance"`
	AngleDiff       float64  `json:"angle_diff"`
	AttackerViewX   float64  `json:"attacker_view_x"`
	AttackerViewY   float64  `json:"attacker_view_y"`
	VictimViewX     float64  `json:"victim_view_x"`
	VictimViewY     float64  `json:"victim_view_y"`
	DemoFile        string   `json:"demo_file"`
}

type DemoResult struct {
	DemoFile  string      `json:"demo_file"`
	MapName   string      `json:"map_name"`
	Kills     []KillEvent `json:"kills"`
	Error     string      `json:"error,omitempty"`
	Success   bool        `json:"success"`
	KillCount int         `json:"kill_count"`
}

func teamToString(team common.Team) string {
	switch team {
	case common.TeamTerrorists:
		return "T"
	case common.TeamCounterTerrorists:
		return "CT"
	default:
		return "UNKNOWN"
	}
}

func calculateDistance(a, b r3.Vector) float64 {
	return a.Sub(b).Norm()
}

// calculateAngleDifference returns the absolute difference of two yaw angles in degrees, at most 180.
func calculateAngleDifference(viewAngle1, viewAngle2 float32) float64 {
	diff := float64(viewAngle1 - viewAngle2)
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// killContext is the match state a kill row is stamped with.
type killContext struct {
	tick     int
	mapName  string
	round    int
	demoFile string
}

// newKillEvent returns false for kills without a killing player (world, bomb, suicide by fall damage).
func newKillEvent(e events.Kill, ctx killContext) (KillEvent, bool) {
	if e.Killer == nil || e.Victim == nil {
		return KillEvent{}, false
	}

	kill := KillEvent{
		Tick:            ctx.tick,
		AttackerName:    e.Killer.Name,
		AttackerSteamID: strconv.FormatUint(e.Killer.SteamID64, 10),
		AttackerPos:     newPosition(e.Killer.Position),
		VictimName:      e.Victim.Name,
		VictimSteamID:   strconv.FormatUint(e.Victim.SteamID64, 10),
		VictimPos:       newPosition(e.Victim.Position),
		IsHeadshot:      e.IsHeadshot,
		ThroughSmoke:    e.ThroughSmoke,
		Penetrated:      e.PenetratedObjects,
		AttackerTeam:    teamToString(e.Killer.Team),
		VictimTeam:      teamToString(e.Victim.Team),
		MapName:         ctx.mapName,
		RoundNumber:     ctx.round,
		Distance:        calculateDistance(e.Killer.Position, e.Victim.Position),
		AngleDiff:       calculateAngleDifference(e.Killer.ViewDirectionX, e.Victim.ViewDirectionX),
		AttackerViewX:   float64(e.Killer.ViewDirectionX),
		AttackerViewY:   float64(e.Killer.ViewDirectionY),
		VictimViewX:     float64(e.Victim.ViewDirectionX),
		VictimViewY:     float64(e.Victim.ViewDirectionY),
		DemoFile:        ctx.demoFile,
	}

	if e.Weapon != nil {
		kill.Weapon = e.Weapon.String()
	}

	if e.Assister != nil {
		kill.AssisterName = e.Assister.Name
	}

	return kill, true
}

func parseDemoFile(ctx context.Context, filePath string, cfg demo.ParserConfig) *DemoResult {
	result := &DemoResult{
		DemoFile: filepath.Base(filePath),
		Kills:    []KillEvent{},
	}

	f, err := os.Open(filePath)
	if err != nil {
		result.Error = errors.Wrap(err, "failed to open demo file").Error()
		return result
	}

	p := demo.NewParserWithConfig(f, cfg)
	defer func() {
		if err := p.Close(); err != nil {
			cfg.Logger.WithError(err).Warn("failed to close parser")
		}
	}()

	p.RegisterEventHandler(func(e events.Kill) {
		gs := p.GameState()

		kill, ok := newKillEvent(e, killContext{
			tick:     gs.IngameTick(),
			mapName:  gs.MapName(),
			round:    gs.RoundsPlayed() + 1,
			demoFile: result.DemoFile,
		})
		if !ok {
			return
		}

		result.Kills = append(result.Kills, kill)
	})

	err = p.ParseToEnd(ctx)

	result.MapName = p.GameState().MapName()
	result.KillCount = len(result.Kills)

	if err != nil {
		result.Error = errors.Wrap(err, "error parsing demo").Error()
		return result
	}

	cfg.Logger.WithFields(logrus.Fields{
		"demo":  result.DemoFile,
		"map":   result.MapName,
		"kills": result.KillCount,
	}).Info("parsed demo")

	result.Success = true

	return result
}

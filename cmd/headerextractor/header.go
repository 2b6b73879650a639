package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/dualitycsgo1/csgodemo/pkg/demo"
	"github.com/dualitycsgo1/csgodemo/pkg/demo/common"
)

// Source 2 filestamp, CS2 demos are recognized but not decoded.
const cs2Filestamp = "PBDEMS2"

type DemoInfo struct {
	MapName         string  `json:"map_name"`
	ServerName      string  `json:"server_name"`
	ClientName      string  `json:"client_name"`
	DemoFile        string  `json:"demo_file"`
	Success         bool    `json:"success"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	DemoType        string  `json:"demo_type"` // "CS:GO" or "CS2"
	Protocol        int     `json:"protocol,omitempty"`
	NetworkProtocol int     `json:"network_protocol,omitempty"`
	PlaybackTime    float32 `json:"playback_time,omitempty"`
	PlaybackTicks   int     `json:"playback_ticks,omitempty"`
	PlaybackFrames  int     `json:"playback_frames,omitempty"`
	TickRate        float64 `json:"tick_rate,omitempty"`
}

func newDemoInfo(filePath string, h common.DemoHeader) *DemoInfo {
	return &DemoInfo{
		MapName:         h.MapName,
		ServerName:      h.ServerName,
		ClientName:      h.ClientName,
		DemoFile:        filePath,
		DemoType:        "CS:GO",
		Protocol:        h.Protocol,
		NetworkProtocol: h.NetworkProtocol,
		PlaybackTime:    h.PlaybackTime,
		PlaybackTicks:   h.PlaybackTicks,
		PlaybackFrames:  h.PlaybackFrames,
		TickRate:        h.TickRate(),
	}
}

func readDemoHeader(filePath string, cfg demo.ParserConfig) (*DemoInfo, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	p := demo.NewParserWithConfig(f, cfg)
	defer p.Close()

	h, err := p.ParseHeader()
	if err != nil {
		if h.Filestamp == cs2Filestamp {
			return &DemoInfo{DemoFile: filePath, DemoType: "CS2"}, errors.New("CS2 demos are not supported")
		}
		return nil, err
	}

	info := newDemoInfo(filePath, h)
	info.Success = true

	return info, nil
}

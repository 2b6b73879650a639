package cliconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
parser:
  ignore_unknown_weapon_models: true
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Output.Indent)
	assert.True(t, cfg.Parser.IgnoreUnknownWeaponModels)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("log:\n  colour: true\n"))

	assert.ErrorContains(t, err, "colour")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  indent: false\n  path: kills.json\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Output.Indent)
	assert.Equal(t, "kills.json", cfg.Output.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := LogConfig{Level: "info", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger.WithField("map", "de_nuke").Info("parsed")
	assert.Contains(t, buf.String(), `"map":"de_nuke"`)

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.ErrorContains(t, err, "xml")
}

func TestDemoParserConfig(t *testing.T) {
	logger := logrus.New()

	cfg := ParserConfig{IgnoreUnknownWeaponModels: true}.DemoParserConfig(logger)

	assert.Same(t, logger, cfg.Logger)
	assert.True(t, cfg.IgnoreUnknownWeaponModels)
}

func TestWriteJSON(t *testing.T) {
	v := map[string]int{"kills": 3}

	var compact, indented bytes.Buffer
	require.NoError(t, OutputConfig{}.WriteJSON(&compact, v))
	require.NoError(t, OutputConfig{Indent: true}.WriteJSON(&indented, v))

	assert.Equal(t, "{\"kills\":3}\n", compact.String())
	assert.Equal(t, "{\n  \"kills\": 3\n}\n", indented.String())
}

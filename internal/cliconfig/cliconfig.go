// Package cliconfig holds the configuration shared by the command line tools.
package cliconfig

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dualitycsgo1/csgodemo/pkg/demo"
)

// Config is the YAML configuration file of a command line tool.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Output OutputConfig `yaml:"output"`
	Parser ParserConfig `yaml:"parser"`
}

// LogConfig configures the logger, which always writes to stderr.
type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // "text" or "json"
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	Path   string `yaml:"path"` // stdout if empty
	Indent bool   `yaml:"indent"`
}

// ParserConfig is the file representation of demo.ParserConfig.
type ParserConfig struct {
	IgnoreUnknownWeaponModels bool `yaml:"ignore_unknown_weapon_models"`
}

// Default returns the configuration used without a config file.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  logrus.WarnLevel.String(),
			Format: "text",
		},
		Output: OutputConfig{
			Indent: true,
		},
	}
}

// Load reads a config file. Missing keys keep their default values.
// An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}

	return cfg, nil
}

// Parse decodes a YAML config on top of Default(). Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to decode yaml")
	}

	return cfg, nil
}

// NewLogger creates a logger writing to out.
func (c LogConfig) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	switch c.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", c.Format)
	}

	return logger, nil
}

// DemoParserConfig returns the parser configuration logging to logger.
func (c ParserConfig) DemoParserConfig(logger logrus.FieldLogger) demo.ParserConfig {
	return demo.ParserConfig{
		Logger:                    logger,
		IgnoreUnknownWeaponModels: c.IgnoreUnknownWeaponModels,
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

// Open returns the output destination. Stdout is never closed.
func (c OutputConfig) Open() (io.WriteCloser, error) {
	if c.Path == "" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.Create(c.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output file")
	}

	return f, nil
}

// WriteJSON encodes v to w.
func (c OutputConfig) WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if c.Indent {
		enc.SetIndent("", "  ")
	}

	return errors.Wrap(enc.Encode(v), "failed to encode result")
}

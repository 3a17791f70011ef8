// Package config loads the monitor configuration from a YAML file.
//
// A missing file is not an error: the defaults are written to that path so
// the user has something to edit, and the defaults are used for this run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/iaqmon/telemetry"
)

const DefaultPath = "config.yaml"

type Config struct {
	Homebridge Homebridge `yaml:"homebridge"`
	Sensor     Sensor     `yaml:"sensor"`
	State      State      `yaml:"state"`
	Log        Log        `yaml:"log"`
}

type Homebridge struct {
	// URL of the HTTP webhooks endpoint. Empty disables publishing.
	URL                    string                `yaml:"url"`
	PublishIntervalSeconds int                   `yaml:"publish_interval_seconds"`
	Accessories            telemetry.Accessories `yaml:"accessories"`
}

func (h Homebridge) PublishInterval() time.Duration {
	return time.Duration(h.PublishIntervalSeconds) * time.Second
}

type Sensor struct {
	Backend           string  `yaml:"backend"`
	Engine            string  `yaml:"engine"`
	Device            string  `yaml:"device"`
	Address           uint16  `yaml:"address"`
	TemperatureOffset float64 `yaml:"temperature_offset"`
	SampleRate        string  `yaml:"sample_rate"`
	BusSpeedKHz       int     `yaml:"bus_speed_khz"`
}

// BusSpeed is the requested bus clock, zero for the driver default.
func (s Sensor) BusSpeed() physic.Frequency {
	return physic.Frequency(s.BusSpeedKHz) * physic.KiloHertz
}

type State struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
}

func (s State) Path() string {
	return filepath.Join(s.Dir, s.File)
}

type Log struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Level      string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Homebridge: Homebridge{
			PublishIntervalSeconds: 15,
			Accessories:            telemetry.DefaultAccessories(),
		},
		Sensor: Sensor{
			Backend:           BackendLinux,
			Engine:            EngineEmulator,
			Device:            "/dev/i2c-1",
			Address:           0x77,
			TemperatureOffset: 9.0,
			SampleRate:        "lp",
		},
		State: State{
			Dir:  "./saved_state",
			File: "bsec_state_file",
		},
		Log: Log{
			File:       "logs/log",
			MaxSizeMB:  5,
			MaxBackups: 3,
			Level:      "info",
		},
	}
}

// Load reads the file at path over the defaults, normalizes and validates it.
// When the file does not exist the defaults are written there first.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()
	logger.Info("loading configuration", "path", path)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("configuration file does not exist, creating default", "path", path)
		if err := WriteDefault(path); err != nil {
			logger.Warn("could not create default configuration file, using defaults", "error", err)
		}
	case err != nil:
		return nil, fmt.Errorf("config: could not read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: could not parse %s: %w", path, err)
		}
	}

	Normalize(cfg, logger)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	EnsureStateDir(cfg, logger)
	cfg.log(logger)
	return cfg, nil
}

// EnsureStateDir creates the saved state directory. Failure only costs the
// calibration state, so it is logged and not returned.
func EnsureStateDir(cfg *Config, logger *slog.Logger) {
	if _, err := os.Stat(cfg.State.Dir); err == nil {
		return
	}
	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		logger.Warn("could not create saved state directory", "dir", cfg.State.Dir, "error", err)
		return
	}
	logger.Info("created saved state directory", "dir", cfg.State.Dir)
}

func (c *Config) log(logger *slog.Logger) {
	url := c.Homebridge.URL
	if url == "" {
		url = "[disabled]"
	}
	logger.Info("configuration loaded",
		"homebridge.url", url,
		"homebridge.publish_interval_seconds", c.Homebridge.PublishIntervalSeconds,
		"sensor.backend", c.Sensor.Backend,
		"sensor.engine", c.Sensor.Engine,
		"sensor.device", c.Sensor.Device,
		"sensor.address", fmt.Sprintf("%#x", c.Sensor.Address),
		"sensor.temperature_offset", c.Sensor.TemperatureOffset,
		"sensor.sample_rate", c.Sensor.SampleRate,
		"state.path", c.State.Path(),
	)
}

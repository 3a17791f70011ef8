package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/mklimuk/iaqmon/engine"
)

const (
	BackendLinux     = "linux"
	BackendPeriph    = "periph"
	BackendNanoPi    = "nanopi"
	BackendMCP2221   = "mcp2221"
	BackendSimulated = "simulated"

	EngineEmulator = "emulator"

	// MaxBusSpeedKHz is the I2C high-speed mode ceiling.
	MaxBusSpeedKHz = 3400
)

var Backends = []string{BackendLinux, BackendPeriph, BackendNanoPi, BackendMCP2221, BackendSimulated}

var Engines = []string{EngineEmulator}

// Normalize fills in values the file left empty or set to something unusable
// but recoverable. It logs every value it replaces.
func Normalize(cfg *Config, logger *slog.Logger) {
	if cfg == nil {
		return
	}
	def := Default()

	cfg.Homebridge.URL = strings.TrimSpace(cfg.Homebridge.URL)
	if cfg.Homebridge.PublishIntervalSeconds <= 0 {
		logger.Warn("invalid homebridge.publish_interval_seconds, using default",
			"value", cfg.Homebridge.PublishIntervalSeconds, "default", def.Homebridge.PublishIntervalSeconds)
		cfg.Homebridge.PublishIntervalSeconds = def.Homebridge.PublishIntervalSeconds
	}

	cfg.Sensor.Backend = strings.ToLower(strings.TrimSpace(cfg.Sensor.Backend))
	if cfg.Sensor.Backend == "" {
		cfg.Sensor.Backend = def.Sensor.Backend
	}
	cfg.Sensor.Engine = strings.ToLower(strings.TrimSpace(cfg.Sensor.Engine))
	if cfg.Sensor.Engine == "" {
		cfg.Sensor.Engine = def.Sensor.Engine
	}
	if cfg.Sensor.Device == "" {
		cfg.Sensor.Device = def.Sensor.Device
	}
	cfg.Sensor.SampleRate = strings.ToLower(strings.TrimSpace(cfg.Sensor.SampleRate))

	if cfg.State.Dir == "" {
		cfg.State.Dir = def.State.Dir
	}

	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups < 0 {
		cfg.Log.MaxBackups = def.Log.MaxBackups
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

// Validate reports every problem it finds. It does not modify cfg.
func Validate(cfg *Config) error {
	var err error
	if u := cfg.Homebridge.URL; u != "" {
		parsed, perr := url.Parse(u)
		switch {
		case perr != nil:
			err = multierr.Append(err, fmt.Errorf("config: homebridge.url: %w", perr))
		case parsed.Scheme != "http" && parsed.Scheme != "https":
			err = multierr.Append(err, fmt.Errorf("config: homebridge.url must be an http or https url, got %q", u))
		}
	}
	if !slices.Contains(Backends, cfg.Sensor.Backend) {
		err = multierr.Append(err, fmt.Errorf("config: sensor.backend must be one of %v, got %q", Backends, cfg.Sensor.Backend))
	}
	if !slices.Contains(Engines, cfg.Sensor.Engine) {
		err = multierr.Append(err, fmt.Errorf("config: sensor.engine must be one of %v, got %q", Engines, cfg.Sensor.Engine))
	}
	if cfg.Sensor.Address > 0x7F {
		err = multierr.Append(err, fmt.Errorf("config: sensor.address %#x is not a 7-bit i2c address", cfg.Sensor.Address))
	}
	if cfg.Sensor.BusSpeedKHz < 0 || cfg.Sensor.BusSpeedKHz > MaxBusSpeedKHz {
		err = multierr.Append(err, fmt.Errorf("config: sensor.bus_speed_khz must be between 0 and %d, got %d", MaxBusSpeedKHz, cfg.Sensor.BusSpeedKHz))
	}
	if _, rerr := engine.ParseSampleRate(cfg.Sensor.SampleRate); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("config: sensor.sample_rate: %w", rerr))
	}
	if cfg.State.File == "" {
		err = multierr.Append(err, fmt.Errorf("config: state.file is required"))
	}
	if _, lerr := ParseLevel(cfg.Log.Level); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	return err
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/mklimuk/iaqmon/adapter"
	"github.com/mklimuk/iaqmon/config"
	"github.com/mklimuk/iaqmon/engine"
	"github.com/mklimuk/iaqmon/engine/emulator"
	"github.com/mklimuk/iaqmon/i2c"
)

// newTransport builds the register bus for the configured backend. Nothing
// is opened until the engine adapter initializes.
func newTransport(cfg *config.Config, logger *slog.Logger) (*i2c.Transport, error) {
	var open i2c.Opener
	switch cfg.Sensor.Backend {
	case config.BackendLinux:
		open = i2c.OpenLinux
	case config.BackendPeriph:
		open = i2c.OpenPeriph(cfg.Sensor.BusSpeed())
	case config.BackendNanoPi:
		open = i2c.OpenNanoPi
	case config.BackendMCP2221:
		bridge := adapter.NewMCP2221()
		if err := bridge.Init(); err != nil {
			return nil, fmt.Errorf("mcp2221 initialization error: %w", err)
		}
		open = i2c.OverBus(bridge)
	case config.BackendSimulated:
		open = emulator.NewSensor(emulator.Indoor).Opener()
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Sensor.Backend)
	}
	return i2c.NewTransport(open, i2c.WithLogger(logger.With("component", "i2c"))), nil
}

// newEngine returns the configured engine. The emulator expects the sample
// rate of the embedded configuration blob.
func newEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Sensor.Engine {
	case config.EngineEmulator:
		return emulator.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Sensor.Engine)
	}
}

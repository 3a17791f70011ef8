package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iaqmon/cmd/iaqmon/console"
	"github.com/mklimuk/iaqmon/engine/emulator"
	"github.com/mklimuk/iaqmon/i2c"
)

var busCmd = cli.Command{
	Name:  "bus",
	Usage: "bus diagnostics",
	Subcommands: cli.Commands{
		&busProbeCmd,
	},
}

var busProbeCmd = cli.Command{
	Name:  "probe",
	Usage: "open the configured bus and read the sensor chip id",
	Flags: []cli.Flag{
		backendFlag,
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if err := overrideBackend(cfg, c.String("backend")); err != nil {
			return console.Exit(2, "configuration error: %s", console.Red(err))
		}
		bus, err := newTransport(cfg, slog.Default())
		if err != nil {
			return console.Exit(1, "bus backend error: %s", console.Red(err))
		}
		id, err := probe(bus, cfg.Sensor.Device, cfg.Sensor.Address)
		if err != nil {
			return console.Exit(1, "probe failed: %s", console.Red(err))
		}
		if id != emulator.ChipID {
			console.Warnf("unexpected chip id %#x at %s/%#x (want %#x)", id, cfg.Sensor.Device, cfg.Sensor.Address, emulator.ChipID)
			return console.Exit(1, "no gas sensor found")
		}
		console.PInfof(console.PictoPin, "gas sensor found at %s/%#x (chip id %#x)", cfg.Sensor.Device, cfg.Sensor.Address, id)
		return nil
	},
}

// probe opens the bus, reads the chip id register and closes the bus again.
func probe(bus *i2c.Transport, device string, address uint16) (byte, error) {
	if err := bus.Open(device, address); err != nil {
		return 0, err
	}
	defer bus.Close()
	id, err := bus.Read(emulator.RegChipID, 1)
	if err != nil {
		return 0, fmt.Errorf("could not read chip id: %w", err)
	}
	return id[0], nil
}

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iaqmon/cmd/iaqmon/console"
	"github.com/mklimuk/iaqmon/config"
	"github.com/mklimuk/iaqmon/monitor"
)

var backendFlag = &cli.StringFlag{
	Name:    "backend",
	Aliases: []string{"b"},
	Usage:   "override sensor.backend (linux, periph, nanopi, mcp2221, simulated)",
}

var runCmd = cli.Command{
	Name:  "run",
	Usage: "start monitoring",
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

		file, closer, err := fileHandler(cfg.Log)
		if err != nil {
			return console.Exit(2, "log file error: %s", console.Red(err))
		}
		if closer != nil {
			defer closer.Close()
		}
		logger := slog.New(newFanout(slog.Default().Handler(), file))
		slog.SetDefault(logger)

		bus, err := newTransport(cfg, logger)
		if err != nil {
			return console.Exit(1, "bus backend error: %s", console.Red(err))
		}
		eng, err := newEngine(cfg)
		if err != nil {
			return console.Exit(2, "engine error: %s", console.Red(err))
		}
		m, err := monitor.New(cfg, eng, bus, monitor.WithLogger(logger))
		if err != nil {
			return console.Exit(2, "configuration error: %s", console.Red(err))
		}
		defer func() {
			if err := m.Close(); err != nil {
				logger.Warn("error closing monitor", "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := m.Run(ctx); err != nil {
			return console.Exit(1, "monitoring failed: %s", console.Red(err))
		}
		return nil
	},
}

func overrideBackend(cfg *config.Config, backend string) error {
	if backend == "" {
		return nil
	}
	cfg.Sensor.Backend = backend
	config.Normalize(cfg, slog.Default())
	return config.Validate(cfg)
}

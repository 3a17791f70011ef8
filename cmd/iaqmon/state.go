package main

import (
	"encoding/hex"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iaqmon/cmd/iaqmon/console"
	"github.com/mklimuk/iaqmon/state"
)

var stateCmd = cli.Command{
	Name:  "state",
	Usage: "inspect or reset the saved engine calibration state",
	Subcommands: cli.Commands{
		&stateShowCmd,
		&stateClearCmd,
	},
}

var stateShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the saved state record",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		store := state.NewFileStore(cfg.State.Path())
		blob, err := store.Load()
		if err != nil {
			return console.Exit(1, "could not read state: %s", console.Red(err))
		}
		if blob == nil {
			console.PInfof(console.PictoNotebook, "no saved state at %s", store.Path())
			return nil
		}
		console.PInfof(console.PictoNotebook, "%s: %d of %d bytes", store.Path(), len(blob), store.Capacity())
		console.Printf("%s", hex.Dump(blob))
		return nil
	},
}

var stateClearCmd = cli.Command{
	Name:  "clear",
	Usage: "remove the saved state, the engine restarts calibration on next run",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		store := state.NewFileStore(cfg.State.Path())
		if !c.Bool("yes") {
			answer, err := console.YesOrNo("clear calibration state " + store.Path() + "?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "state kept")
				return nil
			}
		}
		if err := store.Clear(); err != nil {
			return console.Exit(1, "could not clear state: %s", console.Red(err))
		}
		console.Infof("state cleared")
		return nil
	},
}

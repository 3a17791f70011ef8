package main

import (
	"errors"
	"io/fs"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iaqmon/cmd/iaqmon/console"
	"github.com/mklimuk/iaqmon/config"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "manage the configuration file",
	Subcommands: cli.Commands{
		&configInitCmd,
		&configShowCmd,
	},
}

var configInitCmd = cli.Command{
	Name:  "init",
	Usage: "write a commented configuration file with default values",
	Action: func(c *cli.Context) error {
		path := c.String("config")
		if err := config.WriteDefault(path); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return console.Exit(1, "%s already exists", path)
			}
			return console.Exit(1, "could not write configuration: %s", console.Red(err))
		}
		console.Infof("configuration written to %s", path)
		return nil
	},
}

var configShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Printf("%s", data)
		return nil
	},
}

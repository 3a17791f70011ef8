package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/iaqmon/cmd/iaqmon/console"
	"github.com/mklimuk/iaqmon/config"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "iaqmon"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "indoor air quality monitor"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.DefaultPath,
			EnvVars: []string{"IAQMON_CONFIG"},
			Usage:   "configuration file, created with defaults when missing",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		slog.SetDefault(slog.New(consoleHandler(os.Stdout, ctx.Bool("verbose"))))
		return nil
	}
	// exit codes are resolved by run
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Commands = cli.Commands{
		&runCmd,
		&stateCmd,
		&busCmd,
		&usbCmd,
		&configCmd,
	}
	return app
}

func run(args []string) int {
	err := newApp().Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			if msg := exerr.Error(); msg != "" {
				console.Error(msg)
			}
			return exerr.ExitCode()
		}
		console.Errorf("%s", err)
		return 1
	}
	return 0
}

// loadConfig reads the file named by the global flag.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), slog.Default())
	if err != nil {
		return nil, console.Exit(2, "configuration error: %s", console.Red(err))
	}
	return cfg, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/0xef53/phoenix-fm/core"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	})
}

func main() {
	app := new(cli.Command)

	app.Name = "pfm"
	app.Usage = "A file manager backend for the local system and the secure storage"
	app.HideHelpCommand = true
	app.EnableShellCompletion = true

	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable debug/verbose mode",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Sources: cli.EnvVars("PFM_CONFIG"),
			Usage:   "path to the YAML configuration file",
		},
		&cli.StringFlag{
			Name:    "secure-container",
			Sources: cli.EnvVars("PFM_SECURE_CONTAINER"),
			Usage:   "path to the secure storage container",
		},
		&cli.StringFlag{
			Name:    "mount-point",
			Sources: cli.EnvVars("PFM_MOUNT_POINT"),
			Usage:   "virtual path of the secure storage",
		},
		&cli.BoolFlag{
			Name:    "privileged",
			Aliases: []string{"p"},
			Usage:   "run shell commands with superuser privileges",
		},
		&cli.BoolFlag{
			Name:  "auto-escalate",
			Usage: "retry operations refused for permissions with superuser privileges",
		},
		&cli.StringFlag{
			Name:    "cwd",
			Aliases: []string{"C"},
			Usage:   "initial working directory",
		},
	}

	app.Before = setupLogging

	app.Commands = commands()

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "version",
		Usage: "print the version information",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Printf("v%s, (built %s)\n", core.Version, runtime.Version())
			return nil
		},
	})

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Errorln(err)

		os.Exit(exitCode(err))
	}
}

package main

import (
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/mlz-ictrl/nicos-sandbox/cmd"
)

const usage = `run an instrument simulation binary inside a read-only chroot
			   with private mount, network and IPC namespaces.
			   Must be installed setuid root.`

func main() {
	app := cli.NewApp()
	app.Name = "nicos-sandbox"
	app.Usage = usage
	app.ArgsUsage = "rootdir uid gid binary [args...]"

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "log every setup stage, eg: --debug",
		},
	}

	app.Commands = []cli.Command{
		cmd.MountsCommand,
	}
	// No subcommand for the run path: the positional invocation contract
	// (rootdir uid gid binary [args...]) predates this implementation and
	// the launcher side depends on it.
	app.Action = cmd.Run

	app.Before = func(context *cli.Context) error {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if context.Bool("debug") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal("[error] nicos-sandbox: ", err)
	}
}

package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/mgray/tempest/configs"
	"github.com/mgray/tempest/pkg/logs"
)

var (
	app = cli.NewApp()

	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "JSON transport config file",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "log level (debug, info, warn, error)",
	}
	logFolderFlag = cli.StringFlag{
		Name:  "logfolder",
		Usage: "write logs to a rotating file in this folder",
	}
	addrFlag = cli.StringFlag{
		Name:  "addr",
		Value: "127.0.0.1:7000",
		Usage: "TCP address",
	}
)

func init() {
	app.Name = "tempest"
	app.Usage = "typed message connections over TCP"
	app.Flags = []cli.Flag{configFileFlag, logLevelFlag, logFolderFlag}
	app.Commands = []cli.Command{
		listenCommand,
		sendCommand,
		probeCommand,
	}
	app.Before = setup
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// config is filled by setup before any command runs.
var config = configs.Default()

func setup(ctx *cli.Context) error {
	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		conf, err := configs.ReadConfigFromFile(path)
		if err != nil {
			return err
		}
		config = conf
	}
	if lvl := ctx.GlobalString(logLevelFlag.Name); lvl != "" {
		config.LogLevel = lvl
	}
	if folder := ctx.GlobalString(logFolderFlag.Name); folder != "" {
		config.LogFolder = folder
	}
	return logs.Configure(config.LogConfig())
}

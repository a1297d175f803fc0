package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/noteprotocol/note-wallet/internal/config"
	"github.com/noteprotocol/note-wallet/internal/core/application"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	Version string

	cfg *config.Config
)

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "note-cli"
	app.Usage = "NOTE protocol wallet command line interface"
	app.Commands = append(
		app.Commands,
		&initCommand,
		&infoCommand,
		&balanceCommand,
		&utxosCommand,
		&tokenUtxosCommand,
		&sendCommand,
		&sendTokenCommand,
		&mintCommand,
		&deployCommand,
		&publishCommand,
		&tokensCommand,
		&tokenInfoCommand,
		&allTokensCommand,
		&bestBlockCommand,
		&addressScriptCommand,
		&historyCommand,
		&versionCommand,
	)
	app.Flags = config.Flags
	app.Before = func(ctx *cli.Context) error {
		c, err := config.LoadConfig(ctx)
		if err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		log.SetLevel(log.Level(c.LogLevel))
		log.Debugf("config: %s", c)
		cfg = c
		return nil
	}
	app.After = func(_ *cli.Context) error {
		if cfg != nil {
			cfg.Close()
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func appService() (application.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	svc, err := cfg.AppService()
	if err != nil {
		return nil, fmt.Errorf("error initializing wallet: %v", err)
	}
	return svc, nil
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}

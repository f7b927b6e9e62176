/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// cernan is a telemetry and log aggregation daemon. It ingests points
// and lines from its configured sources, routes them through filter
// hops into per-sink queues and ships them on a flush beat.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/etsangsplk/cernan/config"
	"github.com/etsangsplk/cernan/daemon"
)

func main() {
	app := kingpin.New("cernan", "Telemetry and log aggregation daemon.")
	app.Version("0.4.0")
	configFile := app.Flag("config", "The config file to read.").
		Short('C').Default("/etc/cernan.yaml").String()
	dataDir := app.Flag("data-dir", "Override the configured data directory.").String()
	verbose := app.Flag("verbose", "Turn on verbose output. Repeat for more.").
		Short('v').Counter()

	if _, err := app.Parse(os.Args[1:]); err != nil {
		kingpin.Fatalf("failed to parse arguments, %s, try --help", err)
	}

	// Configure logger
	switch *verbose {
	case 0:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case 2:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 3:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}
	logger.Logger = logger.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    true,
		TimeFormat: "15:04:05.000"})

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not load configuration.")
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	d, err := daemon.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not assemble the pipeline.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Pipeline exited dirty.")
		os.Exit(1)
	}
}

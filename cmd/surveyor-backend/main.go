// surveyor-backend runs the tracking REST API with an in-memory or DynamoDB
// fix store and a YAML account seed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/theoremus-urban-solutions/surveyor-tracking/backend"
	"github.com/theoremus-urban-solutions/surveyor-tracking/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
		seedPath   string
		logLevel   string
		readAuth   bool
	)
	flags := pflag.NewFlagSet("surveyor-backend", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to config.yml (default: $SURVEYOR_CONFIG or ./config.yml)")
	flags.IntVar(&port, "port", 0, "listen port (overrides server.port)")
	flags.StringVar(&seedPath, "seed", "", "YAML file with surveyor accounts (overrides server.seedPath)")
	flags.StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides logging.level)")
	flags.BoolVar(&readAuth, "require-read-auth", false, "require Basic credentials on read endpoints")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if err := internal.LoadEnv(); err != nil {
		return err
	}
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	logger := internal.InitLogging(logLevel)

	if port == 0 {
		port = cfg.Server.Port
	}
	if seedPath == "" {
		seedPath = cfg.Server.SeedPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := backend.NewDirectory()
	if seedPath != "" {
		n, err := dir.LoadSeed(seedPath)
		if err != nil {
			return err
		}
		logger.Info("accounts loaded", "path", seedPath, "count", n)
	} else {
		logger.Warn("no seed file configured; every login will be rejected")
	}

	var store backend.Store = backend.NewMemoryStore()
	if cfg.Server.DynamoTable != "" {
		ds, err := backend.OpenDynamoStore(ctx, cfg.Server.DynamoRegion, cfg.Server.DynamoTable)
		if err != nil {
			return err
		}
		store = ds
		logger.Info("using DynamoDB fix store", "table", cfg.Server.DynamoTable, "region", cfg.Server.DynamoRegion)
	}

	srv := backend.NewServer(store, dir,
		backend.WithLogger(logger),
		backend.WithOfflineThreshold(cfg.Server.OfflineThreshold()),
		backend.WithReadAuth(readAuth || cfg.Server.RequireReadAuth),
		backend.WithFeed(cfg.Feed.AgencyID, cfg.Feed.ReadInterval()),
	)
	return backend.ListenAndServe(ctx, fmt.Sprintf(":%d", port), srv.Handler(), logger)
}

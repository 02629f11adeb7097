package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/1hive/honeyswap-indexer/internal/api"
	"github.com/1hive/honeyswap-indexer/internal/app"
	"github.com/1hive/honeyswap-indexer/internal/config"
	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/network"
)

// The server exposes the read API over a store filled by a separate indexer
// process.
func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.SetupLogger(cfg.Logging)
	logger.Info().Str("version", "0.1.0").Str("config", configPath).Msg("Starting Honeyswap API server")

	if cfg.Store.Backend == "memory" {
		logger.Fatal().Msg("The in-memory store is private to the indexer process, run the indexer with -api instead")
	}

	net, err := network.Resolve(cfg.Chain.Network)
	if err != nil {
		logger.Fatal().Err(err).Str("network", cfg.Chain.Network).Msg("Failed to resolve network")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer stores.Close()

	server := api.NewAPIServer(stores.Backend, entity.AddressID(net.Factory), logger)
	for name, check := range stores.Checks {
		server.AddCheck(name, check)
	}

	if err := server.Start(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		logger.Error().Err(err).Msg("API server failed")
		os.Exit(1)
	}
	logger.Info().Msg("API server shutdown complete")
}

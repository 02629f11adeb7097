package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/1hive/honeyswap-indexer/internal/api"
	"github.com/1hive/honeyswap-indexer/internal/app"
	"github.com/1hive/honeyswap-indexer/internal/config"
	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/processor"
	"github.com/1hive/honeyswap-indexer/internal/realtime"
	"github.com/1hive/honeyswap-indexer/internal/scheduler"
)

func main() {
	var (
		configPath string
		serveAPI   bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&serveAPI, "api", true, "Serve the read API from this process")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.SetupLogger(cfg.Logging)
	logger.Info().
		Str("version", "0.1.0").
		Str("config", configPath).
		Str("feed", cfg.Feed.Source).
		Str("store", cfg.Store.Backend).
		Msg("Starting Honeyswap Indexer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer stores.Close()

	client, err := app.DialChain(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to RPC endpoint")
	}
	if client != nil {
		defer client.Close()
	}

	module, err := app.LoadModule(cfg, client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load module")
	}
	registry, err := app.NewRegistry(module, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start module registry")
	}
	defer func() { _ = registry.Stop() }()

	proc := processor.New(stores.Backend, registry, processor.Config{
		MaxBlockEvents: cfg.Processor.MaxBlockEvents,
	}, logger)

	var statsPublisher scheduler.StatsPublisher
	if cfg.Realtime.Enabled {
		pubConfig := realtime.PublishConfig{
			APIURL:        cfg.Realtime.URL,
			APIKey:        cfg.Realtime.APIKey,
			FlushInterval: cfg.Realtime.FlushInterval,
		}
		publisher := realtime.NewPublisher(realtime.NewClient(pubConfig), stores.Backend, pubConfig, logger)
		publisher.Start()
		defer func() { _ = publisher.Close() }()
		proc.Subscribe(publisher)
		statsPublisher = publisher
	}

	source, closeSource, err := app.Source(ctx, cfg, client, module, stores.Backend, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create feed")
	}
	defer closeSource()

	factoryID := app.FactoryID(module)
	stats, err := scheduler.NewStatsScheduler(stores.Backend, factoryID, statsPublisher, cfg.Scheduler.StatsInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create stats scheduler")
	}
	if err := stats.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start stats scheduler")
	}
	defer stats.Stop()

	indexer := processor.NewIndexer(source, proc, cfg.Chain.StartBlock, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return indexer.Run(gctx)
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg, logger)
		})
	}

	if serveAPI {
		server := api.NewAPIServer(stores.Backend, factoryID, logger)
		server.SetModules(registry)
		for name, check := range stores.Checks {
			server.AddCheck(name, check)
		}
		server.AddCheck("indexer", api.CheckerFunc(func(context.Context) error {
			if status := indexer.GetStatus(); status.LastError != "" && !status.Running {
				return fmt.Errorf("indexer stopped: %s", status.LastError)
			}
			return nil
		}))
		g.Go(func() error {
			return server.Start(gctx, fmt.Sprintf(":%d", cfg.Server.Port))
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Indexer failed")
		os.Exit(1)
	}
	logger.Info().Msg("Indexer shutdown complete")
}

func serveMetrics(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", server.Addr).Str("path", cfg.Metrics.Path).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package app assembles the indexer's components from configuration. The
// commands under cmd/ share it.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/api"
	"github.com/1hive/honeyswap-indexer/internal/chain"
	"github.com/1hive/honeyswap-indexer/internal/config"
	"github.com/1hive/honeyswap-indexer/internal/database"
	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/feed"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/modules/honeyswap"
	"github.com/1hive/honeyswap-indexer/internal/modules/loader"
	"github.com/1hive/honeyswap-indexer/internal/prices"
	"github.com/1hive/honeyswap-indexer/internal/rpc"
	"github.com/1hive/honeyswap-indexer/internal/store"
	"github.com/1hive/honeyswap-indexer/internal/store/cache"
	"github.com/1hive/honeyswap-indexer/internal/store/memory"
)

// Backend is an entity store that can also list.
type Backend interface {
	store.Backend
	store.Lister
}

// Stores is the opened entity backend with its health checks.
type Stores struct {
	Backend Backend
	Checks  map[string]api.Checker

	closers []func()
}

func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
}

// OpenStore opens the configured backend. Postgres is migrated first, and
// wrapped in the Redis cache when it is enabled.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stores, error) {
	stores := &Stores{Checks: make(map[string]api.Checker)}

	if cfg.Store.Backend == "memory" {
		logger.Warn().Msg("Using the in-memory store, state is lost on exit")
		stores.Backend = memory.New()
		return stores, nil
	}

	if err := database.RunMigrations(ctx, cfg.Database.ConnectionString(), logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	stores.Backend = db
	stores.Checks["database"] = db
	stores.closers = append(stores.closers, db.Close)

	if cfg.Store.Redis.Enabled {
		cached := cache.New(cache.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			TTL:      cfg.Store.Redis.TTL,
		}, db, logger)
		if err := cached.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Store.Redis.Addr).Msg("Redis unreachable, reads will fall back to the database")
		}
		stores.Backend = cached
		stores.Checks["redis"] = cached
		stores.closers = append(stores.closers, func() { _ = cached.Close() })
	}
	return stores, nil
}

// DialChain connects to the RPC endpoint. Without an endpoint it returns nil,
// and only replayed feeds can be used.
func DialChain(cfg *config.Config, logger zerolog.Logger) (*rpc.Client, error) {
	if cfg.Chain.RPCEndpoint == "" {
		return nil, nil
	}
	return rpc.NewClient(cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, logger)
}

// LoadModule reads the manifest and builds the Honeyswap module. Chain-backed
// pricing and balance modes need client.
func LoadModule(cfg *config.Config, client *rpc.Client, logger zerolog.Logger) (*honeyswap.Module, error) {
	manifest, err := loader.NewManifestLoader(logger).LoadFromFile(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	var opts honeyswap.Options
	if client != nil {
		var factory common.Address
		if ds, ok := manifest.FindDataSource("Factory"); ok && ds.Source.Address != nil {
			factory = common.HexToAddress(*ds.Source.Address)
		}
		contracts := chain.NewContracts(client.Eth(), factory, logger)
		opts.Tokens = contracts
		if cfg.Pricing.PairLookup == "chain" {
			opts.Pairs = prices.NewChainRegistry(contracts)
		}
		if cfg.Pricing.Balances == "chain" {
			opts.Balances = honeyswap.NewChainBalances(contracts)
		}
	} else if cfg.Pricing.PairLookup == "chain" || cfg.Pricing.Balances == "chain" {
		return nil, fmt.Errorf("chain pricing modes require chain.rpc_endpoint")
	}

	return honeyswap.NewModule(manifest, opts, logger)
}

// NewRegistry registers the module and starts routing.
func NewRegistry(module core.Module, logger zerolog.Logger) (*core.ModuleRegistry, error) {
	registry := core.NewModuleRegistry(logger)
	if err := registry.RegisterModule(module); err != nil {
		return nil, err
	}
	if err := registry.Start(); err != nil {
		return nil, err
	}
	return registry, nil
}

// FactoryID is the id of the module's factory entity.
func FactoryID(module *honeyswap.Module) string {
	return entity.AddressID(module.Network().Factory)
}

// RPCSource builds the log-polling feed and seeds its watch list with the pairs
// already in the store.
func RPCSource(ctx context.Context, cfg *config.Config, client *rpc.Client, module *honeyswap.Module, pairs store.Lister, logger zerolog.Logger) (*feed.RPCSource, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc feed requires chain.rpc_endpoint")
	}
	source := feed.NewRPCSource(client, feed.RPCConfig{
		Factory:       module.FactoryAddress(),
		FactoryTopic:  honeyswap.PairCreatedTopic(),
		PairTopics:    honeyswap.PairTopics(),
		DiscoverPair:  honeyswap.DiscoverPair,
		LogRange:      cfg.Chain.LogRange,
		Confirmations: cfg.Chain.Confirmations,
		Workers:       cfg.Chain.FetchWorkers,
		PollInterval:  cfg.Chain.BlockTime,
	}, logger)

	known, err := store.ListAs[entity.Pair](ctx, pairs, entity.KindPair, store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list known pairs: %w", err)
	}
	addrs := make([]common.Address, len(known))
	for i, p := range known {
		addrs[i] = common.HexToAddress(p.ID)
	}
	source.Watch(addrs...)
	logger.Info().Int("pairs", len(addrs)).Msg("Watching known pairs")
	return source, nil
}

// Source builds the configured feed. The returned closer releases the Kafka
// reader, if any.
func Source(ctx context.Context, cfg *config.Config, client *rpc.Client, module *honeyswap.Module, pairs store.Lister, logger zerolog.Logger) (feed.Source, func(), error) {
	switch cfg.Feed.Source {
	case "kafka":
		reader := feed.NewKafkaReader(feed.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		source := feed.NewKafkaSource(reader, cfg.Processor.IdleFlush, logger)
		return source, func() { _ = source.Close() }, nil
	case "file":
		return feed.NewFileSource(cfg.Feed.File, logger), func() {}, nil
	default:
		source, err := RPCSource(ctx, cfg, client, module, pairs, logger)
		if err != nil {
			return nil, nil, err
		}
		return source, func() {}, nil
	}
}

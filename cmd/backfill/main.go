package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/app"
	"github.com/1hive/honeyswap-indexer/internal/config"
	"github.com/1hive/honeyswap-indexer/internal/feed"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/processor"
	"github.com/1hive/honeyswap-indexer/internal/store/memory"
)

// backfill fetches a block range over RPC and hands every block to the chosen
// sinks: the store, a JSON-lines file for later replay, or the Kafka topic the
// indexer consumes.
func main() {
	var (
		configPath string
		fromBlock  uint64
		toBlock    uint64
		apply      bool
		outPath    string
		publish    bool
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Uint64Var(&fromBlock, "from", 0, "Starting block (defaults to chain.start_block)")
	flag.Uint64Var(&toBlock, "to", 0, "Ending block (defaults to the confirmed head)")
	flag.BoolVar(&apply, "apply", false, "Apply the range to the configured store")
	flag.StringVar(&outPath, "out", "", "Append the range to this JSON-lines file")
	flag.BoolVar(&publish, "publish", false, "Publish the range to the Kafka topic")
	flag.Parse()

	if !apply && outPath == "" && !publish {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -apply, -out or -publish")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if fromBlock == 0 {
		fromBlock = cfg.Chain.StartBlock
	}

	logger := app.SetupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fromBlock, toBlock, apply, outPath, publish, logger); err != nil {
		logger.Error().Err(err).Msg("Backfill failed")
		os.Exit(1)
	}
	logger.Info().Msg("Backfill complete")
}

func run(ctx context.Context, cfg *config.Config, from, to uint64, apply bool, outPath string, publish bool, logger zerolog.Logger) error {
	client, err := app.DialChain(cfg, logger)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("backfill requires chain.rpc_endpoint")
	}
	defer client.Close()

	module, err := app.LoadModule(cfg, client, logger)
	if err != nil {
		return err
	}

	// Known pairs seed the watch list; without a store only pairs created
	// inside the range are followed.
	var pairs app.Backend = memory.New()
	var sinks []feed.BlockHandler

	if apply {
		stores, err := app.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stores.Close()
		pairs = stores.Backend

		registry, err := app.NewRegistry(module, logger)
		if err != nil {
			return err
		}
		defer func() { _ = registry.Stop() }()

		proc := processor.New(stores.Backend, registry, processor.Config{
			MaxBlockEvents: cfg.Processor.MaxBlockEvents,
		}, logger)
		cursor, err := proc.Resume(ctx)
		if err != nil {
			return err
		}
		if cursor != nil && cursor.BlockNumber >= from {
			logger.Info().Uint64("cursor", cursor.BlockNumber).Msg("Events up to the cursor are skipped")
		}
		sinks = append(sinks, proc.HandleBlock)
	}

	if outPath != "" {
		writer, err := feed.CreateFile(outPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error().Err(err).Str("path", outPath).Msg("Failed to close event file")
			}
		}()
		sinks = append(sinks, writer.Write)
	}

	if publish {
		publisher := feed.NewKafkaPublisher(feed.NewKafkaWriter(feed.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}), app.FactoryID(module), logger)
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher.Publish)
	}

	source, err := app.RPCSource(ctx, cfg, client, module, pairs, logger)
	if err != nil {
		return err
	}

	if to == 0 {
		head, err := client.GetLatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		if head < cfg.Chain.Confirmations {
			return fmt.Errorf("chain head %d is below the confirmation depth", head)
		}
		to = head - cfg.Chain.Confirmations
	}
	if to < from {
		return fmt.Errorf("empty range %d-%d", from, to)
	}

	logger.Info().
		Uint64("from", from).
		Uint64("to", to).
		Int("sinks", len(sinks)).
		Msg("Starting backfill")

	var blocks, events int
	handle := func(ctx context.Context, block uint64, batch []*core.RawEvent) error {
		for _, sink := range sinks {
			if err := sink(ctx, block, batch); err != nil {
				return err
			}
		}
		blocks++
		events += len(batch)
		return nil
	}

	step := cfg.Chain.LogRange
	if step == 0 {
		step = 2000
	}
	for start := from; start <= to; start += step {
		end := min(start+step-1, to)
		if err := source.RunRange(ctx, start, end, handle); err != nil {
			return err
		}
		logger.Info().
			Uint64("through", end).
			Int("blocks", blocks).
			Int("events", events).
			Int("pairs", source.Watched()).
			Msg("Backfill progress")
	}

	return nil
}

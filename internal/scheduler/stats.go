// Package scheduler runs the periodic jobs that sit beside the indexer.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

const defaultStatsInterval = time.Minute

// StatsPublisher receives the dex summary after each run.
type StatsPublisher interface {
	PublishStats(ctx context.Context, stats any)
}

// DexStats is the factory-wide summary.
type DexStats struct {
	Factory             string          `json:"factory"`
	PairCount           int64           `json:"pairCount"`
	TxCount             int64           `json:"txCount"`
	TotalVolumeUSD      decimal.Decimal `json:"totalVolumeUSD"`
	TotalLiquidityUSD   decimal.Decimal `json:"totalLiquidityUSD"`
	NativeCurrencyPrice decimal.Decimal `json:"nativeCurrencyPrice"`
}

type StatsScheduler struct {
	reader    store.Reader
	factoryID string
	publisher StatsPublisher
	interval  time.Duration
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

// NewStatsScheduler builds the job; publisher may be nil.
func NewStatsScheduler(reader store.Reader, factoryID string, publisher StatsPublisher, interval time.Duration, logger zerolog.Logger) (*StatsScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = defaultStatsInterval
	}

	return &StatsScheduler{
		reader:    reader,
		factoryID: factoryID,
		publisher: publisher,
		interval:  interval,
		scheduler: s,
		logger:    logger.With().Str("component", "stats-scheduler").Logger(),
	}, nil
}

func (s *StatsScheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run, ctx),
		gocron.WithName("dex-stats"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("Stats scheduler started")
	s.scheduler.Start()
	return nil
}

func (s *StatsScheduler) Stop() {
	s.logger.Info().Msg("Stopping stats scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

func (s *StatsScheduler) run(ctx context.Context) {
	stats, err := s.Collect(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to collect dex stats")
		return
	}
	if stats == nil {
		s.logger.Debug().Msg("Factory not indexed yet")
		return
	}

	metrics.UpdateDexStats(
		stats.NativeCurrencyPrice.InexactFloat64(),
		stats.TotalLiquidityUSD.InexactFloat64(),
		stats.TotalVolumeUSD.InexactFloat64(),
		stats.PairCount,
	)
	if s.publisher != nil {
		s.publisher.PublishStats(ctx, stats)
	}

	s.logger.Debug().
		Int64("pairs", stats.PairCount).
		Str("liquidity_usd", stats.TotalLiquidityUSD.StringFixed(2)).
		Msg("Dex stats updated")
}

// Collect reads the factory and bundle. It returns nil before the first
// PairCreated has been indexed.
func (s *StatsScheduler) Collect(ctx context.Context) (*DexStats, error) {
	factory, ok, err := store.Find[entity.Factory](ctx, s.reader, entity.KindFactory, s.factoryID)
	if err != nil || !ok {
		return nil, err
	}

	stats := &DexStats{
		Factory:           factory.ID,
		PairCount:         factory.PairCount,
		TxCount:           factory.TxCount,
		TotalVolumeUSD:    factory.TotalVolumeUSD,
		TotalLiquidityUSD: factory.TotalLiquidityUSD,
	}
	bundle, ok, err := store.Find[entity.Bundle](ctx, s.reader, entity.KindBundle, entity.BundleID)
	if err != nil {
		return nil, err
	}
	if ok {
		stats.NativeCurrencyPrice = bundle.NativeCurrencyPrice
	}
	return stats, nil
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/rpc"
)

// ChainReader is the subset of *rpc.Client used by RPCSource.
type ChainReader interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash, workers int64) ([]types.Log, error)
	BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]uint64, error)
	TransactionSender(ctx context.Context, blockHash common.Hash, index uint) (common.Address, error)
}

// RPCConfig configures the log-polling source.
type RPCConfig struct {
	Factory      common.Address
	FactoryTopic common.Hash
	PairTopics   []common.Hash
	// DiscoverPair extracts the new pair from a factory log.
	DiscoverPair func(types.Log) (common.Address, bool)

	LogRange      uint64
	Confirmations uint64
	Workers       int64
	PollInterval  time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

// RPCSource polls eth_getLogs for the factory and every known pair. Pairs
// announced by the factory in a range are fetched in that same range.
type RPCSource struct {
	client ChainReader
	cfg    RPCConfig
	logger zerolog.Logger

	mu      sync.RWMutex
	pairs   []common.Address
	watched map[common.Address]struct{}
	head    uint64
	synced  uint64
}

var _ ChainReader = (*rpc.Client)(nil)

func NewRPCSource(client ChainReader, cfg RPCConfig, logger zerolog.Logger) *RPCSource {
	if cfg.LogRange == 0 {
		cfg.LogRange = 2000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &RPCSource{
		client:  client,
		cfg:     cfg,
		logger:  logger.With().Str("component", "rpc_feed").Logger(),
		watched: make(map[common.Address]struct{}),
	}
}

func (s *RPCSource) Name() string { return "rpc" }

// Watch adds pairs whose events should be fetched.
func (s *RPCSource) Watch(pairs ...common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		if _, ok := s.watched[p]; ok {
			continue
		}
		s.watched[p] = struct{}{}
		s.pairs = append(s.pairs, p)
	}
}

// Watched returns the number of watched pairs.
func (s *RPCSource) Watched() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// Status reports the last delivered block and the confirmed chain head.
func (s *RPCSource) Status() (synced, head uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced, s.head
}

func (s *RPCSource) watchList() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Run follows the confirmed head, polling every PollInterval once caught up.
func (s *RPCSource) Run(ctx context.Context, from uint64, handle BlockHandler) error {
	next := from
	s.logger.Info().Uint64("from", from).Int("pairs", s.Watched()).Msg("Starting RPC feed")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		head, err := s.confirmedHead(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			return err
		}

		for next <= head {
			end := min(next+s.cfg.LogRange-1, head)
			if err := s.RunRange(ctx, next, end, handle); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return ErrStopped
				}
				return err
			}
			next = end + 1
		}

		select {
		case <-ctx.Done():
			return ErrStopped
		case <-ticker.C:
		}
	}
}

func (s *RPCSource) confirmedHead(ctx context.Context) (uint64, error) {
	var latest uint64
	err := s.retry(ctx, "eth_blockNumber", func() error {
		var err error
		latest, err = s.client.GetLatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	head := uint64(0)
	if latest > s.cfg.Confirmations {
		head = latest - s.cfg.Confirmations
	}

	s.mu.Lock()
	s.head = head
	s.mu.Unlock()
	metrics.UpdateFeedHead(head)
	return head, nil
}

// RunRange fetches and delivers [from, to].
func (s *RPCSource) RunRange(ctx context.Context, from, to uint64, handle BlockHandler) error {
	events, err := s.fetchRange(ctx, from, to)
	if err != nil {
		return err
	}
	if err := deliver(ctx, events, from, handle); err != nil {
		return err
	}

	s.mu.Lock()
	s.synced = to
	s.mu.Unlock()

	s.logger.Debug().
		Uint64("from", from).
		Uint64("to", to).
		Int("events", len(events)).
		Msg("Range delivered")
	return nil
}

func (s *RPCSource) fetchRange(ctx context.Context, from, to uint64) ([]*core.RawEvent, error) {
	var factoryLogs []types.Log
	err := s.retry(ctx, "eth_getLogs", func() error {
		var err error
		factoryLogs, err = s.client.GetLogs(ctx, from, to, []common.Address{s.cfg.Factory},
			[][]common.Hash{{s.cfg.FactoryTopic}}, 1)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.DiscoverPair != nil {
		for _, log := range factoryLogs {
			if pair, ok := s.cfg.DiscoverPair(log); ok {
				s.Watch(pair)
				s.logger.Info().Str("pair", pair.Hex()).Uint64("block", log.BlockNumber).Msg("Watching new pair")
			}
		}
	}

	var pairLogs []types.Log
	if watch := s.watchList(); len(watch) > 0 {
		err = s.retry(ctx, "eth_getLogs", func() error {
			var err error
			pairLogs, err = s.client.GetLogs(ctx, from, to, watch, [][]common.Hash{s.cfg.PairTopics}, s.cfg.Workers)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	logs := append(factoryLogs, pairLogs...)
	rpc.SortLogs(logs)
	metrics.RecordFeedLogs(s.Name(), len(logs))
	if len(logs) == 0 {
		return nil, nil
	}
	return s.enrich(ctx, logs)
}

// enrich attaches block timestamps and transaction senders.
func (s *RPCSource) enrich(ctx context.Context, logs []types.Log) ([]*core.RawEvent, error) {
	var blocks []uint64
	seen := make(map[uint64]struct{})
	for _, log := range logs {
		if _, ok := seen[log.BlockNumber]; !ok {
			seen[log.BlockNumber] = struct{}{}
			blocks = append(blocks, log.BlockNumber)
		}
	}

	var timestamps map[uint64]uint64
	err := s.retry(ctx, "eth_getBlockByNumber", func() error {
		var err error
		timestamps, err = s.client.BlockTimestamps(ctx, blocks)
		return err
	})
	if err != nil {
		return nil, err
	}

	type txKey struct {
		block common.Hash
		index uint
	}
	var (
		mu      sync.Mutex
		senders = make(map[txKey]common.Address)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(s.cfg.Workers))
	for _, log := range logs {
		key := txKey{log.BlockHash, log.TxIndex}
		mu.Lock()
		_, done := senders[key]
		if !done {
			senders[key] = common.Address{}
		}
		mu.Unlock()
		if done {
			continue
		}

		g.Go(func() error {
			var from common.Address
			err := s.retry(gctx, "eth_getTransactionByBlockHashAndIndex", func() error {
				var err error
				from, err = s.client.TransactionSender(gctx, key.block, key.index)
				return err
			})
			if err != nil {
				return err
			}
			mu.Lock()
			senders[key] = from
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events := make([]*core.RawEvent, len(logs))
	for i, log := range logs {
		ts, ok := timestamps[log.BlockNumber]
		if !ok {
			return nil, fmt.Errorf("missing timestamp for block %d", log.BlockNumber)
		}
		events[i] = &core.RawEvent{
			Log:       log,
			Timestamp: ts,
			TxFrom:    senders[txKey{log.BlockHash, log.TxIndex}],
		}
	}
	return events, nil
}

// retry runs fn with exponential backoff, recording each attempt's latency.
func (s *RPCSource) retry(ctx context.Context, method string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		start := time.Now()
		lastErr = fn()
		metrics.RecordRPCLatency(method, time.Since(start))
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || attempt == s.cfg.MaxRetries-1 {
			break
		}

		delay := s.cfg.RetryDelay * time.Duration(1<<attempt)
		s.logger.Warn().
			Err(lastErr).
			Str("method", method).
			Int("attempt", attempt+1).
			Dur("wait", delay).
			Msg("RPC call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, s.cfg.MaxRetries, lastErr)
}

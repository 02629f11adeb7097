// Package realtime pushes committed pair state and swaps to Centrifugo.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/processor"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

const (
	PairsChannel = "dex.pairs"
	StatsChannel = "dex.stats"

	defaultFlushInterval = 250 * time.Millisecond
)

// PairChannel is the per-pair channel.
func PairChannel(pair string) string {
	return "dex.pair." + pair
}

// Client is the part of *gocent.Client the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, data []byte, opts ...gocent.PublishOption) (gocent.PublishResult, error)
}

var _ Client = (*gocent.Client)(nil)

type PublishConfig struct {
	APIURL        string
	APIKey        string
	FlushInterval time.Duration
}

func NewClient(config PublishConfig) *gocent.Client {
	return gocent.New(gocent.Config{
		Addr: config.APIURL,
		Key:  config.APIKey,
	})
}

// Publisher batches touched pairs and publishes their current documents on a
// timer. It subscribes to processor commits, so nothing uncommitted is ever
// published.
type Publisher struct {
	gc     Client
	reader store.Reader
	logger zerolog.Logger

	mu           sync.Mutex
	pending      map[string]struct{}
	currentBlock uint64

	flushCh  chan struct{}
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPublisher(gc Client, reader store.Reader, config PublishConfig, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	interval := config.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	return &Publisher{
		gc:       gc,
		reader:   reader,
		logger:   logger.With().Str("component", "realtime-publisher").Logger(),
		pending:  make(map[string]struct{}),
		flushCh:  make(chan struct{}, 1),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

var _ processor.Subscriber = (*Publisher)(nil)

// Start runs the background flusher until Close.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				p.logger.Info().Msg("Stopping publisher flusher")
				return
			case <-ticker.C:
				p.flush(p.ctx)
			case <-p.flushCh:
				p.flush(p.ctx)
			}
		}
	}()
}

// OnCommit queues the pairs a block touched and publishes its swaps.
func (p *Publisher) OnCommit(ctx context.Context, result *processor.BlockResult) {
	p.SetCurrentBlock(result.Block)

	for _, m := range result.Mutations {
		if m.Deleted {
			continue
		}
		switch m.Kind {
		case entity.KindPair:
			p.EnqueuePairChanged(m.ID)
		case entity.KindSwap:
			var swap entity.Swap
			if err := json.Unmarshal(m.Data, &swap); err != nil {
				p.logger.Warn().Err(err).Str("swap", m.ID).Msg("Failed to decode swap")
				continue
			}
			p.PublishEvent(ctx, swap.Pair, "swap", &swap)
		}
	}
}

func (p *Publisher) EnqueuePairChanged(pair string) {
	p.mu.Lock()
	p.pending[pair] = struct{}{}
	p.mu.Unlock()

	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

func (p *Publisher) PublishEvent(ctx context.Context, pair string, eventType string, data interface{}) {
	payload := map[string]any{
		"type":       "pair.event",
		"event_type": eventType,
		"data":       data,
	}
	p.publish(ctx, PairChannel(pair), payload)
}

// PublishStats sends a dex-wide summary.
func (p *Publisher) PublishStats(ctx context.Context, stats any) {
	p.publish(ctx, StatsChannel, map[string]any{
		"type": "dex.stats",
		"ts":   time.Now().UTC().Unix(),
		"data": stats,
	})
}

func (p *Publisher) publish(ctx context.Context, channel string, payload map[string]any) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to marshal payload")
		return
	}
	if _, err := p.gc.Publish(ctx, channel, payloadBytes); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Warn().Err(err).Str("channel", channel).Msg("Failed to publish")
	}
}

func (p *Publisher) SetCurrentBlock(blockNumber uint64) {
	p.mu.Lock()
	p.currentBlock = blockNumber
	p.mu.Unlock()
}

// Flush publishes queued pairs now.
func (p *Publisher) Flush() {
	p.flush(p.ctx)
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	currentBlock := p.currentBlock
	p.pending = make(map[string]struct{})
	p.mu.Unlock()
	sort.Strings(ids)

	p.logger.Debug().
		Int("count", len(ids)).
		Uint64("block", currentBlock).
		Msg("Flushing pair updates")

	timestamp := time.Now().UTC().Unix()
	items := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := p.reader.Get(ctx, entity.KindPair, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				p.logger.Error().Err(err).Str("pair", id).Msg("Failed to load pair")
			}
			continue
		}
		items = append(items, json.RawMessage(raw))

		p.publish(ctx, PairChannel(id), map[string]any{
			"type":         "pair.update",
			"block_number": currentBlock,
			"ts":           timestamp,
			"pair":         json.RawMessage(raw),
		})
	}
	if len(items) == 0 {
		return
	}

	p.publish(ctx, PairsChannel, map[string]any{
		"type":         "pair.batch",
		"block_number": currentBlock,
		"ts":           timestamp,
		"items":        items,
	})
	p.logger.Debug().Int("count", len(items)).Uint64("block", currentBlock).Msg("Published batch update")
}

func (p *Publisher) Close() error {
	p.logger.Info().Msg("Closing publisher")
	p.cancel()
	p.wg.Wait()
	p.flush(context.Background())
	return nil
}

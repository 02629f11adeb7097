// Package processor applies feed blocks to the entity store and keeps the
// replay cursor.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// DefaultCursorID names the IndexerState document of a single pipeline.
const DefaultCursorID = "indexer"

// Router hands an event to the modules interested in it.
type Router interface {
	Route(ctx context.Context, tx *store.Batch, event *core.RawEvent) error
}

var _ Router = (*core.ModuleRegistry)(nil)

// BlockResult describes one committed block.
type BlockResult struct {
	Block      uint64
	Timestamp  uint64
	Events     int
	Applied    int
	Duplicates int
	// Mutations are the committed writes in last-write order.
	Mutations []store.Mutation
}

// Subscriber is notified after a block is durably committed.
type Subscriber interface {
	OnCommit(ctx context.Context, result *BlockResult)
}

type SubscriberFunc func(ctx context.Context, result *BlockResult)

func (f SubscriberFunc) OnCommit(ctx context.Context, result *BlockResult) { f(ctx, result) }

type Config struct {
	CursorID string
	// MaxBlockEvents commits the block unit of work early after this many
	// events. Zero means one commit per block.
	MaxBlockEvents int
}

// Processor applies events one block at a time. Each event runs in its own
// unit of work layered over the block's; the cursor is saved with the event,
// so an event is reflected in the store exactly when the cursor covers it.
type Processor struct {
	backend store.Backend
	router  Router
	cfg     Config
	logger  zerolog.Logger

	mu          sync.RWMutex
	cursor      *entity.IndexerState
	subscribers []Subscriber
}

func New(backend store.Backend, router Router, cfg Config, logger zerolog.Logger) *Processor {
	if cfg.CursorID == "" {
		cfg.CursorID = DefaultCursorID
	}
	return &Processor{
		backend: backend,
		router:  router,
		cfg:     cfg,
		logger:  logger.With().Str("component", "processor").Logger(),
	}
}

// Subscribe registers s for commit notifications.
func (p *Processor) Subscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, s)
}

// Resume loads the persisted cursor. It returns nil when nothing was indexed.
func (p *Processor) Resume(ctx context.Context) (*entity.IndexerState, error) {
	cursor, ok, err := store.Find[entity.IndexerState](ctx, p.backend, entity.KindIndexerState, p.cfg.CursorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !ok {
		p.cursor = nil
		p.logger.Info().Str("cursor", p.cfg.CursorID).Msg("No cursor, starting fresh")
		return nil, nil
	}
	p.cursor = cursor
	p.logger.Info().
		Str("cursor", p.cfg.CursorID).
		Uint64("block", cursor.BlockNumber).
		Uint64("log_index", cursor.LogIndex).
		Msg("Resuming from cursor")

	out := *cursor
	return &out, nil
}

// Cursor returns the last committed position.
func (p *Processor) Cursor() (entity.IndexerState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor == nil {
		return entity.IndexerState{}, false
	}
	return *p.cursor, true
}

// NextBlock is the block a feed should restart from. The cursor's own block
// is requested again since it may have been committed only in part; events it
// covers are skipped.
func (p *Processor) NextBlock(start uint64) uint64 {
	cursor, ok := p.Cursor()
	if !ok || cursor.BlockNumber < start {
		return start
	}
	return cursor.BlockNumber
}

// HandleBlock applies the events of one block, in order. It is a
// feed.BlockHandler. On error nothing after the last commit is kept and the
// cursor does not move.
func (p *Processor) HandleBlock(ctx context.Context, block uint64, events []*core.RawEvent) error {
	start := time.Now()
	result := &BlockResult{Block: block, Events: len(events)}
	if len(events) > 0 {
		result.Timestamp = events[0].Timestamp
	}

	p.mu.RLock()
	cursor := p.cursor
	p.mu.RUnlock()

	blockTx := store.NewBatch(p.backend)
	uncommitted := 0

	for _, ev := range events {
		n, logIndex := ev.Position()
		if n != block {
			return fmt.Errorf("event %s-%d belongs to block %d, not %d", ev.Log.TxHash.Hex(), logIndex, n, block)
		}
		if cursor.Covers(n, logIndex) {
			result.Duplicates++
			metrics.RecordDuplicate()
			continue
		}

		eventTx := store.NewBatch(blockTx)
		if err := p.router.Route(ctx, eventTx, ev); err != nil {
			return fmt.Errorf("failed to apply event %s-%d in block %d: %w", ev.Log.TxHash.Hex(), logIndex, block, err)
		}
		if eventTx.Len() > 0 {
			result.Applied++
		}
		if err := eventTx.Commit(ctx); err != nil {
			return err
		}

		cursor = &entity.IndexerState{ID: p.cfg.CursorID, BlockNumber: n, LogIndex: logIndex}
		if err := blockTx.Save(cursor); err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}

		uncommitted++
		if p.cfg.MaxBlockEvents > 0 && uncommitted >= p.cfg.MaxBlockEvents {
			if err := p.commit(ctx, blockTx, cursor, result); err != nil {
				return err
			}
			uncommitted = 0
		}
	}

	if err := p.commit(ctx, blockTx, cursor, result); err != nil {
		return err
	}
	elapsed := time.Since(start)
	metrics.RecordCommit(block, elapsed)

	if result.Duplicates > 0 {
		p.logger.Info().
			Uint64("block", block).
			Int("duplicates", result.Duplicates).
			Msg("Skipped already indexed events")
	}
	p.logger.Debug().
		Uint64("block", block).
		Int("events", result.Events).
		Int("applied", result.Applied).
		Int("mutations", len(result.Mutations)).
		Dur("duration", elapsed).
		Msg("Block committed")

	if len(result.Mutations) > 0 {
		p.notify(ctx, result)
	}
	return nil
}

func (p *Processor) commit(ctx context.Context, blockTx *store.Batch, cursor *entity.IndexerState, result *BlockResult) error {
	if blockTx.Len() == 0 {
		return nil
	}
	mutations := blockTx.Mutations()
	if err := blockTx.Commit(ctx); err != nil {
		p.logger.Error().Err(err).Uint64("block", result.Block).Msg("Failed to commit block")
		return fmt.Errorf("failed to commit block %d: %w", result.Block, err)
	}
	result.Mutations = append(result.Mutations, mutations...)

	p.mu.Lock()
	p.cursor = cursor
	p.mu.Unlock()
	return nil
}

func (p *Processor) notify(ctx context.Context, result *BlockResult) {
	p.mu.RLock()
	subscribers := make([]Subscriber, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.RUnlock()

	for _, s := range subscribers {
		s.OnCommit(ctx, result)
	}
}

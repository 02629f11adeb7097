package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/feed"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

const (
	defaultMaxConsecutiveErrors = 10
	defaultRetryDelay           = 5 * time.Second
	progressEvery               = 1000
)

// Indexer drives a feed source into the processor, restarting the source from
// the cursor when it fails.
type Indexer struct {
	source     feed.Source
	processor  *Processor
	startBlock uint64
	logger     zerolog.Logger

	MaxConsecutiveErrors int
	RetryDelay           time.Duration

	mu        sync.RWMutex
	running   bool
	blocks    uint64
	lastBlock uint64
	lastError error
	startedAt time.Time
}

func NewIndexer(source feed.Source, processor *Processor, startBlock uint64, logger zerolog.Logger) *Indexer {
	return &Indexer{
		source:               source,
		processor:            processor,
		startBlock:           startBlock,
		logger:               logger.With().Str("component", "indexer").Str("source", source.Name()).Logger(),
		MaxConsecutiveErrors: defaultMaxConsecutiveErrors,
		RetryDelay:           defaultRetryDelay,
	}
}

// Run blocks until ctx is cancelled, the source is exhausted or a store
// failure halts indexing.
func (i *Indexer) Run(ctx context.Context) error {
	if _, err := i.processor.Resume(ctx); err != nil {
		return err
	}

	i.mu.Lock()
	i.running = true
	i.startedAt = time.Now()
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.running = false
		i.mu.Unlock()
	}()

	consecutiveErrors := 0
	for {
		from := i.processor.NextBlock(i.startBlock)
		i.logger.Info().Uint64("from", from).Msg("Starting indexer")

		before := i.processedBlocks()
		err := i.source.Run(ctx, from, i.handleBlock)
		switch {
		case err == nil:
			i.logger.Info().Uint64("blocks", i.processedBlocks()).Msg("Feed exhausted")
			return nil
		case errors.Is(err, feed.ErrStopped) || ctx.Err() != nil:
			i.logger.Info().Msg("Indexer stopped")
			return nil
		case store.IsBackendError(err):
			i.setError(err)
			i.logger.Error().Err(err).Msg("Store failure, halting")
			return err
		}

		i.setError(err)
		if i.processedBlocks() > before {
			consecutiveErrors = 0
		}
		consecutiveErrors++
		i.logger.Error().Err(err).Int("consecutive_errors", consecutiveErrors).Msg("Feed failed")
		if consecutiveErrors >= i.MaxConsecutiveErrors {
			return fmt.Errorf("too many consecutive errors: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(i.RetryDelay):
		}
	}
}

func (i *Indexer) handleBlock(ctx context.Context, block uint64, events []*core.RawEvent) error {
	if err := i.processor.HandleBlock(ctx, block, events); err != nil {
		return err
	}

	i.mu.Lock()
	i.blocks++
	i.lastBlock = block
	n := i.blocks
	i.mu.Unlock()

	if n%progressEvery == 0 {
		i.logger.Info().Uint64("block", block).Uint64("blocks", n).Msg("Indexing progress")
	}
	return nil
}

func (i *Indexer) processedBlocks() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.blocks
}

func (i *Indexer) setError(err error) {
	i.mu.Lock()
	i.lastError = err
	i.mu.Unlock()
}

// Status is a point-in-time view of the indexer.
type Status struct {
	Running     bool      `json:"running"`
	Source      string    `json:"source"`
	Blocks      uint64    `json:"blocksProcessed"`
	LastBlock   uint64    `json:"lastBlock"`
	CursorBlock uint64    `json:"cursorBlock"`
	CursorIndex uint64    `json:"cursorLogIndex"`
	StartedAt   time.Time `json:"startedAt"`
	LastError   string    `json:"lastError,omitempty"`
}

func (i *Indexer) GetStatus() Status {
	i.mu.RLock()
	status := Status{
		Running:   i.running,
		Source:    i.source.Name(),
		Blocks:    i.blocks,
		LastBlock: i.lastBlock,
		StartedAt: i.startedAt,
	}
	if i.lastError != nil {
		status.LastError = i.lastError.Error()
	}
	i.mu.RUnlock()

	if cursor, ok := i.processor.Cursor(); ok {
		status.CursorBlock = cursor.BlockNumber
		status.CursorIndex = cursor.LogIndex
	}
	return status
}

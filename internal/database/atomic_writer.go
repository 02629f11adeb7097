package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/store"
)

const (
	upsertEntitySQL = `
		INSERT INTO entities (kind, id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	deleteEntitySQL = `DELETE FROM entities WHERE kind = $1 AND id = $2`
)

// AtomicWriter applies a set of entity mutations in a single transaction, so a
// committed event (and the cursor written with it) is either fully visible or not
// at all.
type AtomicWriter struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewAtomicWriter(pool *pgxpool.Pool, logger zerolog.Logger) *AtomicWriter {
	return &AtomicWriter{
		pool:   pool,
		logger: logger.With().Str("component", "atomic_writer").Logger(),
	}
}

// Write queues every mutation as one pgx batch inside a transaction.
func (w *AtomicWriter) Write(ctx context.Context, mutations []store.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := queueMutations(ctx, tx, mutations); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mutations: %w", err)
	}

	w.logger.Debug().
		Int("mutations", len(mutations)).
		Dur("elapsed", time.Since(start)).
		Msg("Mutations written atomically")
	return nil
}

func queueMutations(ctx context.Context, tx pgx.Tx, mutations []store.Mutation) error {
	batch := &pgx.Batch{}
	for _, m := range mutations {
		if m.Deleted {
			batch.Queue(deleteEntitySQL, string(m.Kind), m.ID)
			continue
		}
		batch.Queue(upsertEntitySQL, string(m.Kind), m.ID, m.Data)
	}

	results := tx.SendBatch(ctx, batch)
	for _, m := range mutations {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to write %s %s: %w", m.Kind, m.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}
	return nil
}

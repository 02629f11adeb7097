package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// BulkWriter upserts large mutation sets through COPY into a staging table. The
// backfill path produces block batches with thousands of documents where per-row
// statements dominate the commit time.
type BulkWriter struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewBulkWriter(pool *pgxpool.Pool, logger zerolog.Logger) *BulkWriter {
	return &BulkWriter{
		pool:   pool,
		logger: logger.With().Str("component", "bulk_writer").Logger(),
	}
}

// Write applies mutations in one transaction. When a key occurs more than once
// the last mutation wins.
func (w *BulkWriter) Write(ctx context.Context, mutations []store.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	start := time.Now()
	upserts, deletes := splitMutations(mutations)

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := w.copyUpserts(ctx, tx, upserts); err != nil {
		return err
	}
	if len(deletes) > 0 {
		if err := queueMutations(ctx, tx, deletes); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit bulk write: %w", err)
	}

	elapsed := time.Since(start)
	w.logger.Info().
		Int("upserts", len(upserts)).
		Int("deletes", len(deletes)).
		Dur("elapsed", elapsed).
		Msg("Bulk write completed")
	return nil
}

func (w *BulkWriter) copyUpserts(ctx context.Context, tx pgx.Tx, upserts []store.Mutation) error {
	if len(upserts) == 0 {
		return nil
	}

	_, err := tx.Exec(ctx, `
		CREATE TEMPORARY TABLE temp_entities (
			kind TEXT,
			id   TEXT,
			data JSONB
		) ON COMMIT DROP
	`)
	if err != nil {
		return fmt.Errorf("failed to create temp entities table: %w", err)
	}

	rows := make([][]any, len(upserts))
	for i, m := range upserts {
		rows[i] = []any{string(m.Kind), m.ID, m.Data}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"temp_entities"},
		[]string{"kind", "id", "data"}, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to copy entities: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO entities (kind, id, data, updated_at)
		SELECT kind, id, data, NOW()
		FROM temp_entities
		ON CONFLICT (kind, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to upsert entities from temp table: %w", err)
	}
	return nil
}

// splitMutations keeps the last mutation per key, separating saves from removals.
func splitMutations(mutations []store.Mutation) (upserts, deletes []store.Mutation) {
	type key struct {
		kind entity.Kind
		id   string
	}
	last := make(map[key]int, len(mutations))
	for i, m := range mutations {
		last[key{m.Kind, m.ID}] = i
	}
	for i, m := range mutations {
		if last[key{m.Kind, m.ID}] != i {
			continue
		}
		if m.Deleted {
			deletes = append(deletes, m)
		} else {
			upserts = append(upserts, m)
		}
	}
	return upserts, deletes
}

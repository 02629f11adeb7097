package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/config"
	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// bulkThreshold is the commit size above which COPY beats batched upserts.
const bulkThreshold = 2000

// invalid_text_representation: an ordered listing hit a non-numeric field.
const pgInvalidTextRepresentation = "22P02"

// Database is the Postgres entity backend: one JSONB document per (kind, id).
type Database struct {
	pool   *pgxpool.Pool
	atomic *AtomicWriter
	bulk   *BulkWriter
	logger zerolog.Logger
}

// Alias for external packages
type DB = Database

var (
	_ store.Backend = (*Database)(nil)
	_ store.Lister  = (*Database)(nil)
)

func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*Database, error) {
	db, err := Connect(ctx, cfg.ConnectionString(), cfg.MaxConnections, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("Connected to database")
	return db, nil
}

// Connect opens a pool for connString.
func Connect(ctx context.Context, connString string, maxConns int32, logger zerolog.Logger) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With().Str("component", "database").Logger()
	return &Database{
		pool:   pool,
		atomic: NewAtomicWriter(pool, logger),
		bulk:   NewBulkWriter(pool, logger),
		logger: logger,
	}, nil
}

func (db *Database) Close() {
	db.pool.Close()
	db.logger.Info().Msg("Database connection closed")
}

func (db *Database) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *Database) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *Database) Get(ctx context.Context, kind entity.Kind, id string) ([]byte, error) {
	var data []byte
	err := db.pool.QueryRow(ctx,
		`SELECT data FROM entities WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, &store.BackendError{Op: "get", Err: err}
	}
	return data, nil
}

// Apply writes all mutations in one transaction.
func (db *Database) Apply(ctx context.Context, mutations []store.Mutation) error {
	var err error
	if len(mutations) > bulkThreshold {
		err = db.bulk.Write(ctx, mutations)
	} else {
		err = db.atomic.Write(ctx, mutations)
	}
	if err != nil {
		return &store.BackendError{Op: "apply", Err: err}
	}
	return nil
}

func (db *Database) List(ctx context.Context, kind entity.Kind, opts store.ListOptions) ([][]byte, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, store.ErrInvalidInput
	}

	var (
		rows pgx.Rows
		err  error
	)
	if opts.OrderBy == "" {
		rows, err = db.pool.Query(ctx, `
			SELECT data FROM entities
			WHERE kind = $1 AND starts_with(id, $2)
			ORDER BY id ASC
			LIMIT NULLIF($3::bigint, 0) OFFSET $4`,
			string(kind), opts.Prefix, opts.Limit, opts.Offset)
	} else {
		rows, err = db.pool.Query(ctx, `
			SELECT data FROM entities
			WHERE kind = $1 AND starts_with(id, $2)
			ORDER BY COALESCE((data->>$5)::numeric, 0) DESC, id ASC
			LIMIT NULLIF($3::bigint, 0) OFFSET $4`,
			string(kind), opts.Prefix, opts.Limit, opts.Offset, opts.OrderBy)
	}
	if err != nil {
		return nil, db.listError(err)
	}
	defer rows.Close()

	out := [][]byte{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, db.listError(err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, db.listError(err)
	}
	return out, nil
}

func (db *Database) listError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation {
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, pgErr.Message)
	}
	return &store.BackendError{Op: "list", Err: err}
}

// Counts returns the number of stored documents per kind.
func (db *Database) Counts(ctx context.Context) (map[entity.Kind]int64, error) {
	rows, err := db.pool.Query(ctx, `SELECT kind, COUNT(*) FROM entities GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.Kind]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[entity.Kind(kind)] = n
	}
	return counts, rows.Err()
}

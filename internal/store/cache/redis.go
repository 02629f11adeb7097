// Package cache puts a Redis read-through/write-through layer in front of a
// durable entity backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/metrics"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

const keyPrefix = "honeyswap"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store serves reads from Redis and falls back to the wrapped backend. Writes go to
// the backend first; the cache is refreshed only after the backend accepted them.
// Cache failures are logged and never fail an operation.
type Store struct {
	client  redis.UniversalClient
	backend store.Backend
	ttl     time.Duration
	logger  zerolog.Logger
}

var _ store.Backend = (*Store)(nil)

// New dials Redis and wraps backend.
func New(opts Options, backend store.Backend, logger zerolog.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.TTL, backend, logger)
}

// NewWithClient wraps backend with an existing client.
func NewWithClient(client redis.UniversalClient, ttl time.Duration, backend store.Backend, logger zerolog.Logger) *Store {
	return &Store{
		client:  client,
		backend: backend,
		ttl:     ttl,
		logger:  logger.With().Str("component", "entity_cache").Logger(),
	}
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Key is the Redis key of a document.
func Key(kind entity.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, id)
}

func (s *Store) Get(ctx context.Context, kind entity.Kind, id string) ([]byte, error) {
	key := Key(kind, id)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		metrics.RecordCache(true)
		return data, nil
	}
	metrics.RecordCache(false)
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to backend")
	}

	data, err = s.backend.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to populate cache")
	}
	return data, nil
}

func (s *Store) Apply(ctx context.Context, mutations []store.Mutation) error {
	if err := s.backend.Apply(ctx, mutations); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, m := range mutations {
		key := Key(m.Kind, m.ID)
		if m.Deleted {
			pipe.Del(ctx, key)
			continue
		}
		pipe.Set(ctx, key, m.Data, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// A stale entry would outlive the write, so drop what we can.
		s.logger.Warn().Err(err).Int("mutations", len(mutations)).Msg("Failed to refresh cache, evicting")
		s.evict(ctx, mutations)
	}
	return nil
}

// List is served by the backend; listings are never cached.
func (s *Store) List(ctx context.Context, kind entity.Kind, opts store.ListOptions) ([][]byte, error) {
	lister, ok := s.backend.(store.Lister)
	if !ok {
		return nil, fmt.Errorf("backend %T cannot list", s.backend)
	}
	return lister.List(ctx, kind, opts)
}

func (s *Store) evict(ctx context.Context, mutations []store.Mutation) {
	keys := make([]string, len(mutations))
	for i, m := range mutations {
		keys[i] = Key(m.Kind, m.ID)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error().Err(err).Msg("Cache eviction failed")
	}
}

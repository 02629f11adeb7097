// Package store defines the entity store contract the engine runs against:
// load by (kind, id), save, remove, plus a unit of work that makes every event
// all-or-nothing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/1hive/honeyswap-indexer/internal/entity"
)

var (
	// ErrNotFound is returned by Get when no document exists for (kind, id).
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput is returned for malformed list options.
	ErrInvalidInput = errors.New("invalid input")
)

// Mutation is one buffered save or remove.
type Mutation struct {
	Kind    entity.Kind `json:"kind"`
	ID      string      `json:"id"`
	Data    []byte      `json:"data,omitempty"`
	Deleted bool        `json:"deleted,omitempty"`
}

// Reader loads raw JSON documents.
type Reader interface {
	Get(ctx context.Context, kind entity.Kind, id string) ([]byte, error)
}

// Writer applies a set of mutations atomically.
type Writer interface {
	Apply(ctx context.Context, mutations []Mutation) error
}

// Backend is a store the engine can both read and commit to.
type Backend interface {
	Reader
	Writer
}

// ListOptions selects a page of one entity kind.
type ListOptions struct {
	// Prefix restricts ids, e.g. "<pair>-" for a pair's day buckets.
	Prefix string
	// OrderBy is a numeric document field sorted descending; empty sorts by id ascending.
	OrderBy string
	Limit   int
	Offset  int
}

// Lister is implemented by backends that can serve the read API.
type Lister interface {
	List(ctx context.Context, kind entity.Kind, opts ListOptions) ([][]byte, error)
}

// BackendError wraps a failure of the underlying storage. It is the only store
// error that should halt the pipeline.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendError reports whether err carries a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// Load decodes the document (kind, id) into a new T.
func Load[T any](ctx context.Context, r Reader, kind entity.Kind, id string) (*T, error) {
	raw, err := r.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}
	return v, nil
}

// Find is Load with absence reported as (nil, false, nil).
func Find[T any](ctx context.Context, r Reader, kind entity.Kind, id string) (*T, bool, error) {
	v, err := Load[T](ctx, r, kind, id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// ListAs decodes a page of documents.
func ListAs[T any](ctx context.Context, l Lister, kind entity.Kind, opts ListOptions) ([]*T, error) {
	docs, err := l.List(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, raw := range docs {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode produces the save mutation for an entity.
func Encode(e entity.Entity) (Mutation, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	return Mutation{Kind: e.EntityKind(), ID: e.EntityID(), Data: data}, nil
}

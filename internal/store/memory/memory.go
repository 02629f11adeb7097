// Package memory is an in-process entity store, used for replays, tests and
// deployments that do not need persistence.
package memory

import (
	"context"
	"sync"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// Store keeps documents in maps guarded by an RWMutex. Values are copied on the
// way in and out.
type Store struct {
	mu   sync.RWMutex
	data map[entity.Kind]map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[entity.Kind]map[string][]byte)}
}

var (
	_ store.Backend = (*Store)(nil)
	_ store.Lister  = (*Store)(nil)
)

func (s *Store) Get(_ context.Context, kind entity.Kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[kind][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(raw), nil
}

func (s *Store) Apply(_ context.Context, mutations []store.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range mutations {
		if m.Deleted {
			delete(s.data[m.Kind], m.ID)
			continue
		}
		byID, ok := s.data[m.Kind]
		if !ok {
			byID = make(map[string][]byte)
			s.data[m.Kind] = byID
		}
		byID[m.ID] = clone(m.Data)
	}
	return nil
}

func (s *Store) List(_ context.Context, kind entity.Kind, opts store.ListOptions) ([][]byte, error) {
	s.mu.RLock()
	docs := make([]store.Document, 0, len(s.data[kind]))
	for id, raw := range s.data[kind] {
		docs = append(docs, store.Document{ID: id, Data: clone(raw)})
	}
	s.mu.RUnlock()

	return store.Page(docs, opts)
}

// Count returns the number of documents of a kind.
func (s *Store) Count(kind entity.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[kind])
}

// Snapshot returns a deep copy of every document, keyed by kind then id.
func (s *Store) Snapshot() map[entity.Kind]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[entity.Kind]map[string]string, len(s.data))
	for kind, byID := range s.data {
		if len(byID) == 0 {
			continue
		}
		docs := make(map[string]string, len(byID))
		for id, raw := range byID {
			docs[id] = string(raw)
		}
		out[kind] = docs
	}
	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

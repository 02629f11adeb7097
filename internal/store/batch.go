package store

import (
	"context"
	"errors"
	"sort"

	"github.com/1hive/honeyswap-indexer/internal/entity"
)

type key struct {
	kind entity.Kind
	id   string
}

type pendingWrite struct {
	mutation Mutation
	seq      int
}

// Batch is a unit of work over a parent backend. Reads see the batch's own
// pending writes first; nothing reaches the parent until Commit. A Batch is itself
// a Backend, so batches nest: an event-level batch commits into a block-level batch,
// which commits into the database.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	parent  Backend
	pending map[key]pendingWrite
	seq     int
}

// NewBatch opens a unit of work over parent.
func NewBatch(parent Backend) *Batch {
	return &Batch{
		parent:  parent,
		pending: make(map[key]pendingWrite),
	}
}

// Get returns the pending document if any, otherwise the parent's.
func (b *Batch) Get(ctx context.Context, kind entity.Kind, id string) ([]byte, error) {
	if w, ok := b.pending[key{kind, id}]; ok {
		if w.mutation.Deleted {
			return nil, ErrNotFound
		}
		return w.mutation.Data, nil
	}
	raw, err := b.parent.Get(ctx, kind, id)
	if err != nil && !errors.Is(err, ErrNotFound) && !IsBackendError(err) {
		return nil, &BackendError{Op: "get", Err: err}
	}
	return raw, err
}

// Apply buffers mutations; later writes to the same key replace earlier ones.
func (b *Batch) Apply(_ context.Context, mutations []Mutation) error {
	for _, m := range mutations {
		b.put(m)
	}
	return nil
}

// Save buffers an entity.
func (b *Batch) Save(e entity.Entity) error {
	m, err := Encode(e)
	if err != nil {
		return err
	}
	b.put(m)
	return nil
}

// Remove buffers a deletion.
func (b *Batch) Remove(kind entity.Kind, id string) {
	b.put(Mutation{Kind: kind, ID: id, Deleted: true})
}

func (b *Batch) put(m Mutation) {
	b.seq++
	b.pending[key{m.Kind, m.ID}] = pendingWrite{mutation: m, seq: b.seq}
}

// Mutations returns the pending writes ordered by their last write.
func (b *Batch) Mutations() []Mutation {
	writes := make([]pendingWrite, 0, len(b.pending))
	for _, w := range b.pending {
		writes = append(writes, w)
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].seq < writes[j].seq })

	out := make([]Mutation, len(writes))
	for i, w := range writes {
		out[i] = w.mutation
	}
	return out
}

// Len is the number of distinct pending keys.
func (b *Batch) Len() int { return len(b.pending) }

// Discard drops every pending write. The batch stays usable.
func (b *Batch) Discard() {
	b.pending = make(map[key]pendingWrite)
}

// Commit applies the pending writes to the parent in one call and clears the batch.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.parent.Apply(ctx, b.Mutations()); err != nil {
		if IsBackendError(err) {
			return err
		}
		return &BackendError{Op: "apply", Err: err}
	}
	b.Discard()
	return nil
}

var _ Backend = (*Batch)(nil)

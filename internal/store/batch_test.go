package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/store"
	"github.com/1hive/honeyswap-indexer/internal/store/memory"
)

func TestBatchReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	b := store.NewBatch(backend)

	require.NoError(t, b.Save(&entity.Bundle{ID: entity.BundleID, NativeCurrencyPrice: decimal.NewFromInt(2)}))

	got, err := store.Load[entity.Bundle](ctx, b, entity.KindBundle, entity.BundleID)
	require.NoError(t, err)
	assert.True(t, got.NativeCurrencyPrice.Equal(decimal.NewFromInt(2)))

	_, err = backend.Get(ctx, entity.KindBundle, entity.BundleID)
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing reaches the backend before commit")

	require.NoError(t, b.Commit(ctx))
	_, err = backend.Get(ctx, entity.KindBundle, entity.BundleID)
	assert.NoError(t, err)
	assert.Zero(t, b.Len())
}

func TestBatchDiscardLeavesBackendUntouched(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.Apply(ctx, []store.Mutation{mustEncode(t, &entity.Pair{ID: "0xpair", TxCount: 1})}))

	b := store.NewBatch(backend)
	require.NoError(t, b.Save(&entity.Pair{ID: "0xpair", TxCount: 2}))
	b.Remove(entity.KindPair, "0xpair")
	_, err := b.Get(ctx, entity.KindPair, "0xpair")
	assert.ErrorIs(t, err, store.ErrNotFound)

	b.Discard()
	require.NoError(t, b.Commit(ctx))

	pair, err := store.Load[entity.Pair](ctx, backend, entity.KindPair, "0xpair")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pair.TxCount)
}

func TestNestedBatchesCommitUpward(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	block := store.NewBatch(backend)
	event := store.NewBatch(block)

	require.NoError(t, event.Save(&entity.User{ID: "0xuser"}))
	require.NoError(t, event.Commit(ctx))

	_, found, err := store.Find[entity.User](ctx, block, entity.KindUser, "0xuser")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, backend.Count(entity.KindUser))

	require.NoError(t, block.Commit(ctx))
	assert.Equal(t, 1, backend.Count(entity.KindUser))
}

func TestMutationsFollowLastWrite(t *testing.T) {
	b := store.NewBatch(memory.New())
	require.NoError(t, b.Save(&entity.User{ID: "a"}))
	require.NoError(t, b.Save(&entity.User{ID: "b"}))
	require.NoError(t, b.Save(&entity.User{ID: "a"}))

	muts := b.Mutations()
	require.Len(t, muts, 2)
	assert.Equal(t, "b", muts[0].ID)
	assert.Equal(t, "a", muts[1].ID)
}

type failingBackend struct{ memory.Store }

func (f *failingBackend) Get(context.Context, entity.Kind, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestBackendFailuresAreMarked(t *testing.T) {
	b := store.NewBatch(&failingBackend{})
	_, err := b.Get(context.Background(), entity.KindPair, "0xpair")
	require.Error(t, err)
	assert.True(t, store.IsBackendError(err))
	assert.False(t, errors.Is(err, store.ErrNotFound))
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	for id, usd := range map[string]int64{"0xa": 5, "0xb": 50, "0xc": 10} {
		require.NoError(t, backend.Apply(ctx, []store.Mutation{
			mustEncode(t, &entity.Pair{ID: id, ReserveUSD: decimal.NewFromInt(usd)}),
		}))
	}

	pairs, err := store.ListAs[entity.Pair](ctx, backend, entity.KindPair, store.ListOptions{OrderBy: "reserveUSD", Limit: 2})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "0xb", pairs[0].ID)
	assert.Equal(t, "0xc", pairs[1].ID)

	byID, err := store.ListAs[entity.Pair](ctx, backend, entity.KindPair, store.ListOptions{Offset: 1})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, "0xb", byID[0].ID)

	_, err = backend.List(ctx, entity.KindPair, store.ListOptions{OrderBy: "token0"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func mustEncode(t *testing.T, e entity.Entity) store.Mutation {
	t.Helper()
	m, err := store.Encode(e)
	require.NoError(t, err)
	return m
}

package prices

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// PairRegistry answers the factory's getPair(tokenA, tokenB). The zero address
// means no pair exists.
type PairRegistry interface {
	GetPair(ctx context.Context, r store.Reader, tokenA, tokenB common.Address) (common.Address, error)
}

// PairCaller is the live factory call, implemented by chain.Contracts.
type PairCaller interface {
	GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error)
}

// StoreRegistry resolves pairs from the PairLookup entities written on
// PairCreated, so pricing depends on the event log alone.
type StoreRegistry struct{}

func NewStoreRegistry() *StoreRegistry { return &StoreRegistry{} }

func (StoreRegistry) GetPair(ctx context.Context, r store.Reader, tokenA, tokenB common.Address) (common.Address, error) {
	id := entity.PairLookupID(entity.AddressID(tokenA), entity.AddressID(tokenB))
	lookup, ok, err := store.Find[entity.PairLookup](ctx, r, entity.KindPairLookup, id)
	if err != nil || !ok {
		return common.Address{}, err
	}
	return common.HexToAddress(lookup.Pair), nil
}

// ChainRegistry asks the factory contract.
type ChainRegistry struct {
	caller PairCaller
}

func NewChainRegistry(caller PairCaller) *ChainRegistry {
	return &ChainRegistry{caller: caller}
}

func (c *ChainRegistry) GetPair(ctx context.Context, _ store.Reader, tokenA, tokenB common.Address) (common.Address, error) {
	return c.caller.GetPair(ctx, tokenA, tokenB)
}

// RegisterPair writes the lookup entries for both token orders.
func RegisterPair(tx *store.Batch, token0, token1, pair string) error {
	for _, id := range []string{entity.PairLookupID(token0, token1), entity.PairLookupID(token1, token0)} {
		if err := tx.Save(&entity.PairLookup{ID: id, Pair: pair}); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ PairRegistry = StoreRegistry{}
	_ PairRegistry = (*ChainRegistry)(nil)
)

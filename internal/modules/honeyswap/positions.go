package honeyswap

import (
	"context"
	"strconv"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// load returns the stored entity or a MissingEntityError.
func load[T any](ctx context.Context, r store.Reader, kind entity.Kind, id string) (*T, error) {
	v, ok, err := store.Find[T](ctx, r, kind, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, MissingEntityError{Kind: kind, ID: id}
	}
	return v, nil
}

func ensureUser(ctx context.Context, tx *store.Batch, id string) error {
	_, ok, err := store.Find[entity.User](ctx, tx, entity.KindUser, id)
	if err != nil || ok {
		return err
	}
	return tx.Save(&entity.User{ID: id, UsdSwapped: numeric.Zero})
}

// ensurePosition loads the user's position in pair, creating it with a zero
// balance on first touch. Creation bumps the pair's provider count through the
// stored pair, so callers must have saved their own pair copy beforehand.
func ensurePosition(ctx context.Context, tx *store.Batch, pairID, user string) (*entity.LiquidityPosition, error) {
	id := entity.PositionID(pairID, user)
	position, ok, err := store.Find[entity.LiquidityPosition](ctx, tx, entity.KindLiquidityPosition, id)
	if err != nil || ok {
		return position, err
	}

	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, pairID)
	if err != nil {
		return nil, err
	}
	pair.LiquidityProviderCount++
	if err := tx.Save(pair); err != nil {
		return nil, err
	}

	position = &entity.LiquidityPosition{
		ID:                    id,
		User:                  user,
		Pair:                  pairID,
		LiquidityTokenBalance: numeric.Zero,
	}
	if err := tx.Save(position); err != nil {
		return nil, err
	}
	return position, nil
}

// writeSnapshot records the position against the pair's current state.
func writeSnapshot(ctx context.Context, tx *store.Batch, position *entity.LiquidityPosition, event *core.ParsedEvent) error {
	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, position.Pair)
	if err != nil {
		return err
	}
	token0, err := load[entity.Token](ctx, tx, entity.KindToken, pair.Token0)
	if err != nil {
		return err
	}
	token1, err := load[entity.Token](ctx, tx, entity.KindToken, pair.Token1)
	if err != nil {
		return err
	}
	bundle, _, err := store.Find[entity.Bundle](ctx, tx, entity.KindBundle, entity.BundleID)
	if err != nil {
		return err
	}

	price := numeric.Zero
	if bundle != nil {
		price = bundle.NativeCurrencyPrice
	}

	snapshot := &entity.LiquidityPositionSnapshot{
		ID:                        position.ID + "-" + strconv.FormatUint(event.Timestamp, 10),
		LiquidityPosition:         position.ID,
		Timestamp:                 event.Timestamp,
		Block:                     event.BlockNumber,
		User:                      position.User,
		Pair:                      position.Pair,
		Token0PriceUSD:            numeric.Mul(numeric.OrZero(token0.DerivedNativeCurrency), price),
		Token1PriceUSD:            numeric.Mul(numeric.OrZero(token1.DerivedNativeCurrency), price),
		Reserve0:                  pair.Reserve0,
		Reserve1:                  pair.Reserve1,
		ReserveUSD:                pair.ReserveUSD,
		LiquidityTokenTotalSupply: pair.TotalSupply,
		LiquidityTokenBalance:     position.LiquidityTokenBalance,
	}
	if err := tx.Save(snapshot); err != nil {
		return err
	}
	return tx.Save(position)
}

package honeyswap

import (
	"context"
	"strconv"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// Day and hour buckets are created zeroed, refreshed with the owner's current
// totals and counted once per event. Volume deltas are added by the caller.

func updateFactoryDayData(ctx context.Context, tx *store.Batch, factoryID string, timestamp uint64) (*entity.FactoryDayData, error) {
	factory, err := load[entity.Factory](ctx, tx, entity.KindFactory, factoryID)
	if err != nil {
		return nil, err
	}

	dayID := entity.DayID(timestamp)
	id := strconv.FormatInt(dayID, 10)
	day, ok, err := store.Find[entity.FactoryDayData](ctx, tx, entity.KindFactoryDayData, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		day = &entity.FactoryDayData{
			ID:                        id,
			Date:                      dayID * entity.SecondsPerDay,
			DailyVolumeNativeCurrency: numeric.Zero,
			DailyVolumeUSD:            numeric.Zero,
			DailyVolumeUntracked:      numeric.Zero,
		}
	}

	day.TotalVolumeUSD = factory.TotalVolumeUSD
	day.TotalVolumeNativeCurrency = factory.TotalVolumeNativeCurrency
	day.TotalLiquidityUSD = factory.TotalLiquidityUSD
	day.TotalLiquidityNativeCurrency = factory.TotalLiquidityNativeCurrency
	day.TxCount = factory.TxCount
	return day, tx.Save(day)
}

func updatePairDayData(ctx context.Context, tx *store.Batch, pairID string, timestamp uint64) (*entity.PairDayData, error) {
	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, pairID)
	if err != nil {
		return nil, err
	}

	dayID := entity.DayID(timestamp)
	id := entity.ChildID(pairID, dayID)
	day, ok, err := store.Find[entity.PairDayData](ctx, tx, entity.KindPairDayData, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		day = &entity.PairDayData{
			ID:                id,
			Date:              dayID * entity.SecondsPerDay,
			PairAddress:       pairID,
			Token0:            pair.Token0,
			Token1:            pair.Token1,
			DailyVolumeToken0: numeric.Zero,
			DailyVolumeToken1: numeric.Zero,
			DailyVolumeUSD:    numeric.Zero,
		}
	}

	day.TotalSupply = pair.TotalSupply
	day.Reserve0 = pair.Reserve0
	day.Reserve1 = pair.Reserve1
	day.ReserveUSD = pair.ReserveUSD
	day.DailyTxns++
	return day, tx.Save(day)
}

func updatePairHourData(ctx context.Context, tx *store.Batch, pairID string, timestamp uint64) (*entity.PairHourData, error) {
	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, pairID)
	if err != nil {
		return nil, err
	}

	hourIndex := entity.HourIndex(timestamp)
	id := entity.ChildID(pairID, hourIndex)
	hour, ok, err := store.Find[entity.PairHourData](ctx, tx, entity.KindPairHourData, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		hour = &entity.PairHourData{
			ID:                 id,
			HourStartUnix:      hourIndex * entity.SecondsPerHour,
			Pair:               pairID,
			HourlyVolumeToken0: numeric.Zero,
			HourlyVolumeToken1: numeric.Zero,
			HourlyVolumeUSD:    numeric.Zero,
		}
	}

	hour.Reserve0 = pair.Reserve0
	hour.Reserve1 = pair.Reserve1
	hour.ReserveUSD = pair.ReserveUSD
	hour.HourlyTxns++
	return hour, tx.Save(hour)
}

func updateTokenDayData(ctx context.Context, tx *store.Batch, token *entity.Token, timestamp uint64) (*entity.TokenDayData, error) {
	bundle, _, err := store.Find[entity.Bundle](ctx, tx, entity.KindBundle, entity.BundleID)
	if err != nil {
		return nil, err
	}
	price := numeric.Zero
	if bundle != nil {
		price = bundle.NativeCurrencyPrice
	}
	derived := numeric.OrZero(token.DerivedNativeCurrency)

	dayID := entity.DayID(timestamp)
	id := entity.ChildID(token.ID, dayID)
	day, ok, err := store.Find[entity.TokenDayData](ctx, tx, entity.KindTokenDayData, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		day = &entity.TokenDayData{
			ID:                        id,
			Date:                      dayID * entity.SecondsPerDay,
			Token:                     token.ID,
			DailyVolumeToken:          numeric.Zero,
			DailyVolumeNativeCurrency: numeric.Zero,
			DailyVolumeUSD:            numeric.Zero,
		}
	}

	day.PriceUSD = numeric.Mul(derived, price)
	day.TotalLiquidityToken = token.TotalLiquidity
	day.TotalLiquidityNativeCurrency = numeric.Mul(token.TotalLiquidity, derived)
	day.TotalLiquidityUSD = numeric.Mul(day.TotalLiquidityNativeCurrency, price)
	day.DailyTxns++
	return day, tx.Save(day)
}

// dayBuckets are the five buckets a pair event touches.
type dayBuckets struct {
	factory *entity.FactoryDayData
	pair    *entity.PairDayData
	hour    *entity.PairHourData
	token0  *entity.TokenDayData
	token1  *entity.TokenDayData
}

// updateDayBuckets refreshes every bucket in the order pair day, pair hour,
// factory day, token0 day, token1 day. A nil factoryID skips the factory bucket.
func updateDayBuckets(ctx context.Context, tx *store.Batch, factoryID *string, pairID string, token0, token1 *entity.Token, timestamp uint64) (*dayBuckets, error) {
	var (
		b   dayBuckets
		err error
	)
	if b.pair, err = updatePairDayData(ctx, tx, pairID, timestamp); err != nil {
		return nil, err
	}
	if b.hour, err = updatePairHourData(ctx, tx, pairID, timestamp); err != nil {
		return nil, err
	}
	if factoryID != nil {
		if b.factory, err = updateFactoryDayData(ctx, tx, *factoryID, timestamp); err != nil {
			return nil, err
		}
	}
	if b.token0, err = updateTokenDayData(ctx, tx, token0, timestamp); err != nil {
		return nil, err
	}
	if b.token1, err = updateTokenDayData(ctx, tx, token1, timestamp); err != nil {
		return nil, err
	}
	return &b, nil
}

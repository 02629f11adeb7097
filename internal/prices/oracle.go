// Package prices values tokens in the native currency and in USD: the whitelist
// scan for derived prices, the stable-pair native price and the tracked
// volume/liquidity rules.
package prices

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/network"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// Oracle derives prices from the pairs already in the store.
type Oracle struct {
	network *network.Network
	pairs   PairRegistry
	logger  zerolog.Logger
}

func NewOracle(net *network.Network, pairs PairRegistry, logger zerolog.Logger) *Oracle {
	return &Oracle{
		network: net,
		pairs:   pairs,
		logger:  logger.With().Str("component", "price_oracle").Logger(),
	}
}

func (o *Oracle) Network() *network.Network { return o.network }

// NativeCurrencyPriceInUSD is the bundle price. Fixed-peg networks return 1.
// Otherwise it is the reserve0-weighted average of token1Price over the stable
// pairs that exist, or zero when none do.
func (o *Oracle) NativeCurrencyPriceInUSD(ctx context.Context, r store.Reader) (decimal.Decimal, error) {
	if o.network.FixedPeg {
		return numeric.One, nil
	}

	var stables []*entity.Pair
	total := numeric.Zero
	for _, addr := range o.network.StablePairAddresses() {
		pair, ok, err := store.Find[entity.Pair](ctx, r, entity.KindPair, entity.AddressID(addr))
		if err != nil {
			return numeric.Zero, err
		}
		if !ok {
			continue
		}
		stables = append(stables, pair)
		total = total.Add(pair.Reserve0)
	}
	if len(stables) == 0 || total.IsZero() {
		return numeric.Zero, nil
	}

	price := numeric.Zero
	for _, pair := range stables {
		weight := numeric.Div(pair.Reserve0, total)
		price = price.Add(numeric.Mul(pair.Token1Price, weight))
	}
	return numeric.Normalize(price), nil
}

// NativeCurrencyPerToken scans the whitelist in order and prices token off the
// first stored pair whose native reserve clears the minimum liquidity threshold.
func (o *Oracle) NativeCurrencyPerToken(ctx context.Context, r store.Reader, token *entity.Token) (decimal.Decimal, error) {
	tokenAddr := common.HexToAddress(token.ID)
	if tokenAddr == o.network.NativeWrapper {
		return numeric.One, nil
	}

	threshold := o.network.MinimumLiquidityThresholdNative
	for _, wl := range o.network.Whitelist {
		pairAddr, err := o.pairs.GetPair(ctx, r, tokenAddr, wl)
		if err != nil {
			if store.IsBackendError(err) {
				return numeric.Zero, err
			}
			return numeric.Zero, fmt.Errorf("failed to resolve pair for %s/%s: %w", token.ID, entity.AddressID(wl), err)
		}
		if pairAddr == (common.Address{}) {
			continue
		}

		pair, ok, err := store.Find[entity.Pair](ctx, r, entity.KindPair, entity.AddressID(pairAddr))
		if err != nil {
			return numeric.Zero, err
		}
		if !ok || !pair.ReserveNativeCurrency.GreaterThan(threshold) {
			continue
		}

		var other string
		var price decimal.Decimal
		switch token.ID {
		case pair.Token0:
			other, price = pair.Token1, pair.Token1Price
		case pair.Token1:
			other, price = pair.Token0, pair.Token0Price
		default:
			continue
		}

		otherToken, ok, err := store.Find[entity.Token](ctx, r, entity.KindToken, other)
		if err != nil {
			return numeric.Zero, err
		}
		if !ok {
			continue
		}
		return numeric.Mul(price, numeric.OrZero(otherToken.DerivedNativeCurrency)), nil
	}

	return numeric.Zero, nil
}

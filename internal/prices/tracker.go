package prices

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/network"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
)

// guardProviderCount is the liquidity provider count under which new pairs must
// show MinimumUSDThresholdNewPairs of whitelisted reserves before volume counts.
const guardProviderCount = 5

// Tracker converts amounts into tracked USD, counting only whitelisted sides.
type Tracker struct {
	network *network.Network
}

func NewTracker(net *network.Network) *Tracker {
	return &Tracker{network: net}
}

// TokenPricesUSD returns derived × bundle price for both tokens. Both are zero
// unless the bundle exists and both tokens have resolved derived prices.
func TokenPricesUSD(bundle *entity.Bundle, token0, token1 *entity.Token) (decimal.Decimal, decimal.Decimal) {
	if bundle == nil || !token0.DerivedNativeCurrency.Valid || !token1.DerivedNativeCurrency.Valid {
		return numeric.Zero, numeric.Zero
	}
	return numeric.Mul(token0.DerivedNativeCurrency.Decimal, bundle.NativeCurrencyPrice),
		numeric.Mul(token1.DerivedNativeCurrency.Decimal, bundle.NativeCurrencyPrice)
}

func (t *Tracker) whitelisted(token *entity.Token) bool {
	return t.network.IsWhitelisted(common.HexToAddress(token.ID))
}

// TrackedVolumeUSD values a swap. Both sides whitelisted averages them, a single
// whitelisted side counts in full, otherwise the volume is untracked (zero).
//
// Pairs with fewer than five liquidity providers are also zeroed while their
// whitelisted reserve value is under the new-pair threshold. With both sides
// whitelisted the plain reserve sum is compared; with one side its value is
// doubled first.
func (t *Tracker) TrackedVolumeUSD(bundle *entity.Bundle, amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token, pair *entity.Pair) decimal.Decimal {
	price0, price1 := TokenPricesUSD(bundle, token0, token1)
	wl0, wl1 := t.whitelisted(token0), t.whitelisted(token1)

	if pair.LiquidityProviderCount < guardProviderCount {
		minUSD := t.network.MinimumUSDThresholdNewPairs
		reserve0USD := numeric.Mul(pair.Reserve0, price0)
		reserve1USD := numeric.Mul(pair.Reserve1, price1)
		switch {
		case wl0 && wl1:
			if reserve0USD.Add(reserve1USD).LessThan(minUSD) {
				return numeric.Zero
			}
		case wl0:
			if reserve0USD.Mul(numeric.Two).LessThan(minUSD) {
				return numeric.Zero
			}
		case wl1:
			if reserve1USD.Mul(numeric.Two).LessThan(minUSD) {
				return numeric.Zero
			}
		}
	}

	switch {
	case wl0 && wl1:
		sum := numeric.Mul(amount0, price0).Add(numeric.Mul(amount1, price1))
		return numeric.Div(sum, numeric.Two)
	case wl0:
		return numeric.Mul(amount0, price0)
	case wl1:
		return numeric.Mul(amount1, price1)
	default:
		return numeric.Zero
	}
}

// TrackedLiquidityUSD values reserves: both sides whitelisted sums them, one
// whitelisted side is doubled, none is zero.
func (t *Tracker) TrackedLiquidityUSD(bundle *entity.Bundle, amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token) decimal.Decimal {
	price0, price1 := TokenPricesUSD(bundle, token0, token1)
	wl0, wl1 := t.whitelisted(token0), t.whitelisted(token1)

	switch {
	case wl0 && wl1:
		return numeric.Normalize(numeric.Mul(amount0, price0).Add(numeric.Mul(amount1, price1)))
	case wl0:
		return numeric.Mul(numeric.Mul(amount0, price0), numeric.Two)
	case wl1:
		return numeric.Mul(numeric.Mul(amount1, price1), numeric.Two)
	default:
		return numeric.Zero
	}
}

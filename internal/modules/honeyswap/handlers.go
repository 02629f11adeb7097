package honeyswap

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/1hive/honeyswap-indexer/internal/chain"
	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
	"github.com/1hive/honeyswap-indexer/internal/prices"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// minimumLiquidity is the amount every pair locks on its first mint.
var minimumLiquidity = big.NewInt(1000)

var zeroAddress common.Address

// args extracts typed event arguments, turning shape mismatches into
// MalformedEventError.
type args struct {
	event *core.ParsedEvent
	err   error
}

func (a *args) address(name string) common.Address {
	if a.err != nil {
		return common.Address{}
	}
	v, err := a.event.AddressArg(name)
	if err != nil {
		a.err = MalformedEventError{Event: a.event.EventName, Err: err}
	}
	return v
}

func (a *args) amount(name string) *big.Int {
	if a.err != nil {
		return nil
	}
	v, err := a.event.BigArg(name)
	if err != nil {
		a.err = MalformedEventError{Event: a.event.EventName, Err: err}
	}
	return v
}

// handleNewPair registers a pair created by the factory, creating the factory,
// bundle and tokens on first sight.
func handleNewPair(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error {
	a := &args{event: event}
	token0Addr := a.address("token0")
	token1Addr := a.address("token1")
	pairAddr := a.address("pair")
	if a.err != nil {
		return a.err
	}
	pairID := entity.AddressID(pairAddr)

	if _, exists, err := store.Find[entity.Pair](ctx, tx, entity.KindPair, pairID); err != nil {
		return err
	} else if exists {
		m.logger.Debug().Str("pair", pairID).Msg("Pair already registered")
		return nil
	}

	factory, ok, err := store.Find[entity.Factory](ctx, tx, entity.KindFactory, m.factoryID)
	if err != nil {
		return err
	}
	if !ok {
		factory = &entity.Factory{ID: m.factoryID}
		if _, hasBundle, err := store.Find[entity.Bundle](ctx, tx, entity.KindBundle, entity.BundleID); err != nil {
			return err
		} else if !hasBundle {
			if err := tx.Save(&entity.Bundle{ID: entity.BundleID, NativeCurrencyPrice: numeric.Zero}); err != nil {
				return err
			}
		}
	}
	factory.PairCount++

	token0, err := m.ensureToken(ctx, tx, token0Addr)
	if err != nil {
		return err
	}
	token1, err := m.ensureToken(ctx, tx, token1Addr)
	if err != nil {
		return err
	}

	pair := &entity.Pair{
		ID:                   pairID,
		Token0:               token0.ID,
		Token1:               token1.ID,
		CreatedAtTimestamp:   event.Timestamp,
		CreatedAtBlockNumber: event.BlockNumber,
	}

	if err := prices.RegisterPair(tx, token0.ID, token1.ID, pairID); err != nil {
		return err
	}
	for _, e := range []entity.Entity{token0, token1, pair, factory} {
		if err := tx.Save(e); err != nil {
			return err
		}
	}

	m.logger.Info().
		Str("pair", pairID).
		Str("token0", token0.Symbol).
		Str("token1", token1.Symbol).
		Int64("pair_count", factory.PairCount).
		Uint64("block", event.BlockNumber).
		Msg("Pair created")
	return nil
}

// ensureToken loads a token or builds it from the address book or the ERC20
// contract. The new token is not saved.
func (m *Module) ensureToken(ctx context.Context, tx *store.Batch, addr common.Address) (*entity.Token, error) {
	id := entity.AddressID(addr)
	token, ok, err := store.Find[entity.Token](ctx, tx, entity.KindToken, id)
	if err != nil || ok {
		return token, err
	}

	meta, err := m.tokenMetadata(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &entity.Token{
		ID:          id,
		Symbol:      meta.Symbol,
		Name:        meta.Name,
		Decimals:    meta.Decimals,
		TotalSupply: decimal.NewFromBigInt(meta.TotalSupply, 0),
	}, nil
}

func (m *Module) tokenMetadata(ctx context.Context, addr common.Address) (*chain.TokenMetadata, error) {
	if info, ok := m.network.Tokens[addr]; ok {
		return &chain.TokenMetadata{
			Name:        info.Name,
			Symbol:      info.Symbol,
			Decimals:    info.Decimals,
			TotalSupply: big.NewInt(0),
		}, nil
	}
	if m.tokens == nil {
		return nil, UnresolvedTokenError{Token: entity.AddressID(addr), Err: errors.New("no token reader configured")}
	}

	meta, err := m.tokens.TokenMetadata(ctx, addr)
	if err != nil {
		if errors.Is(err, chain.ErrNoDecimals) {
			return nil, UnresolvedTokenError{Token: entity.AddressID(addr), Err: err}
		}
		return nil, ChainCallError{Op: "token metadata", Err: err}
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return meta, nil
}

// handleTransfer correlates liquidity token movements into mints and burns and
// keeps user positions current.
func handleTransfer(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error {
	a := &args{event: event}
	from := a.address("from")
	to := a.address("to")
	rawValue := a.amount("value")
	if a.err != nil {
		return a.err
	}

	if to == zeroAddress && rawValue.Cmp(minimumLiquidity) == 0 {
		m.logger.Debug().
			Str("pair", entity.AddressID(event.Address)).
			Str("tx_hash", event.TransactionHash.Hex()).
			Msg("Ignoring initial liquidity lock")
		return nil
	}

	if _, err := load[entity.Factory](ctx, tx, entity.KindFactory, m.factoryID); err != nil {
		return err
	}

	fromID, toID := entity.AddressID(from), entity.AddressID(to)
	if err := ensureUser(ctx, tx, fromID); err != nil {
		return err
	}
	if err := ensureUser(ctx, tx, toID); err != nil {
		return err
	}

	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, entity.AddressID(event.Address))
	if err != nil {
		return err
	}

	value := numeric.ConvertTokenToDecimal(rawValue, liquidityTokenDecimals)
	txn, err := getOrCreateTransaction(ctx, tx, entity.HashID(event.TransactionHash), event.BlockNumber, event.Timestamp)
	if err != nil {
		return err
	}

	c := newCorrelator(tx, txn, pair)
	if from == zeroAddress {
		if err := c.mintTransfer(ctx, toID, value); err != nil {
			return err
		}
	}
	if toID == pair.ID {
		if err := c.burnStaged(fromID, toID, value); err != nil {
			return err
		}
	}
	if to == zeroAddress && fromID == pair.ID {
		if err := c.burnTransfer(ctx, value); err != nil {
			return err
		}
	}

	if from != zeroAddress && fromID != pair.ID {
		if err := m.updatePosition(ctx, tx, pair.ID, fromID, value.Neg(), event); err != nil {
			return err
		}
	}
	if to != zeroAddress && toID != pair.ID {
		if err := m.updatePosition(ctx, tx, pair.ID, toID, value, event); err != nil {
			return err
		}
	}

	return c.flush()
}

func (m *Module) updatePosition(ctx context.Context, tx *store.Batch, pairID, user string, delta decimal.Decimal, event *core.ParsedEvent) error {
	position, err := ensurePosition(ctx, tx, pairID, user)
	if err != nil {
		return err
	}
	balance, err := m.balances.LiquidityBalance(ctx, position, delta, event.BlockNumber)
	if err != nil {
		return err
	}
	position.LiquidityTokenBalance = balance
	return writeSnapshot(ctx, tx, position, event)
}

// handleSync replaces the pair reserves and reprices the pair, its tokens and
// the native currency. The pair's previous contribution to token and factory
// liquidity is removed before the new one is added.
func handleSync(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error {
	a := &args{event: event}
	rawReserve0 := a.amount("reserve0")
	rawReserve1 := a.amount("reserve1")
	if a.err != nil {
		return a.err
	}

	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, entity.AddressID(event.Address))
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
	factory, err := load[entity.Factory](ctx, tx, entity.KindFactory, m.factoryID)
	if err != nil {
		return err
	}

	factory.TotalLiquidityNativeCurrency = numeric.Sub(factory.TotalLiquidityNativeCurrency, pair.TrackedReserveNativeCurrency)
	token0.TotalLiquidity = numeric.Sub(token0.TotalLiquidity, pair.Reserve0)
	token1.TotalLiquidity = numeric.Sub(token1.TotalLiquidity, pair.Reserve1)

	pair.Reserve0 = numeric.ConvertTokenToDecimal(rawReserve0, token0.Decimals)
	pair.Reserve1 = numeric.ConvertTokenToDecimal(rawReserve1, token1.Decimals)
	pair.Token0Price = numeric.Div(pair.Reserve0, pair.Reserve1)
	pair.Token1Price = numeric.Div(pair.Reserve1, pair.Reserve0)
	if err := tx.Save(pair); err != nil {
		return err
	}

	bundle, err := load[entity.Bundle](ctx, tx, entity.KindBundle, entity.BundleID)
	if err != nil {
		return err
	}
	price, err := m.oracle.NativeCurrencyPriceInUSD(ctx, tx)
	if err != nil {
		return err
	}
	bundle.NativeCurrencyPrice = price
	if err := tx.Save(bundle); err != nil {
		return err
	}

	// Both tokens are priced against the stored rows; a route through token0
	// sees its price from before this Sync.
	derived0, err := m.derivedPrice(ctx, tx, token0)
	if err != nil {
		return err
	}
	derived1, err := m.derivedPrice(ctx, tx, token1)
	if err != nil {
		return err
	}
	token0.DerivedNativeCurrency = numeric.Some(derived0)
	token1.DerivedNativeCurrency = numeric.Some(derived1)

	tracked := numeric.Zero
	if !price.IsZero() {
		trackedUSD := m.tracker.TrackedLiquidityUSD(bundle, pair.Reserve0, token0, pair.Reserve1, token1)
		tracked = numeric.Div(trackedUSD, price)
	}

	pair.TrackedReserveNativeCurrency = tracked
	pair.ReserveNativeCurrency = numeric.Add(numeric.Mul(pair.Reserve0, derived0), numeric.Mul(pair.Reserve1, derived1))
	pair.ReserveUSD = numeric.Mul(pair.ReserveNativeCurrency, price)

	factory.TotalLiquidityNativeCurrency = numeric.Add(factory.TotalLiquidityNativeCurrency, tracked)
	factory.TotalLiquidityUSD = numeric.Mul(factory.TotalLiquidityNativeCurrency, price)

	token0.TotalLiquidity = numeric.Add(token0.TotalLiquidity, pair.Reserve0)
	token1.TotalLiquidity = numeric.Add(token1.TotalLiquidity, pair.Reserve1)

	for _, e := range []entity.Entity{pair, factory, token0, token1} {
		if err := tx.Save(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) derivedPrice(ctx context.Context, tx *store.Batch, token *entity.Token) (decimal.Decimal, error) {
	derived, err := m.oracle.NativeCurrencyPerToken(ctx, tx, token)
	if err != nil && !store.IsBackendError(err) {
		return numeric.Zero, ChainCallError{Op: "getPair", Err: err}
	}
	return derived, err
}

// liquidityAmountUSD values both amounts at the bundle price. It is zero unless
// the bundle exists and both tokens are priced.
func liquidityAmountUSD(bundle *entity.Bundle, token0 *entity.Token, amount0 decimal.Decimal, token1 *entity.Token, amount1 decimal.Decimal) decimal.Decimal {
	if bundle == nil || !token0.DerivedNativeCurrency.Valid || !token1.DerivedNativeCurrency.Valid {
		return numeric.Zero
	}
	native := numeric.Add(
		numeric.Mul(token1.DerivedNativeCurrency.Decimal, amount1),
		numeric.Mul(token0.DerivedNativeCurrency.Decimal, amount0),
	)
	return numeric.Mul(native, bundle.NativeCurrencyPrice)
}

// pairContext is the state shared by the Mint and Burn handlers.
type pairContext struct {
	txn     *entity.Transaction
	pair    *entity.Pair
	factory *entity.Factory
	token0  *entity.Token
	token1  *entity.Token
	bundle  *entity.Bundle
}

func (m *Module) loadPairContext(ctx context.Context, tx *store.Batch, event *core.ParsedEvent) (*pairContext, error) {
	var (
		pc  pairContext
		err error
	)
	if pc.txn, err = load[entity.Transaction](ctx, tx, entity.KindTransaction, entity.HashID(event.TransactionHash)); err != nil {
		return nil, err
	}
	if pc.pair, err = load[entity.Pair](ctx, tx, entity.KindPair, entity.AddressID(event.Address)); err != nil {
		return nil, err
	}
	if pc.factory, err = load[entity.Factory](ctx, tx, entity.KindFactory, m.factoryID); err != nil {
		return nil, err
	}
	if pc.token0, err = load[entity.Token](ctx, tx, entity.KindToken, pc.pair.Token0); err != nil {
		return nil, err
	}
	if pc.token1, err = load[entity.Token](ctx, tx, entity.KindToken, pc.pair.Token1); err != nil {
		return nil, err
	}
	if pc.bundle, _, err = store.Find[entity.Bundle](ctx, tx, entity.KindBundle, entity.BundleID); err != nil {
		return nil, err
	}
	return &pc, nil
}

// countTransaction bumps the counters every Mint and Burn contributes to and
// saves the touched entities.
func (pc *pairContext) countTransaction(tx *store.Batch) error {
	pc.token0.TxCount++
	pc.token1.TxCount++
	pc.pair.TxCount++
	pc.factory.TxCount++
	for _, e := range []entity.Entity{pc.token0, pc.token1, pc.pair, pc.factory} {
		if err := tx.Save(e); err != nil {
			return err
		}
	}
	return nil
}

// handleMint completes the transaction's last mint with the deposited amounts.
func handleMint(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error {
	a := &args{event: event}
	sender := a.address("sender")
	rawAmount0 := a.amount("amount0")
	rawAmount1 := a.amount("amount1")
	if a.err != nil {
		return a.err
	}

	pc, err := m.loadPairContext(ctx, tx, event)
	if err != nil {
		return err
	}
	mintID, mint, err := lastMint(ctx, tx, pc.txn)
	if err != nil {
		return err
	}
	if mint == nil {
		return MissingEntityError{Kind: entity.KindMint, ID: lastRecordID(pc.txn.ID, mintID)}
	}

	amount0 := numeric.ConvertTokenToDecimal(rawAmount0, pc.token0.Decimals)
	amount1 := numeric.ConvertTokenToDecimal(rawAmount1, pc.token1.Decimals)
	amountUSD := liquidityAmountUSD(pc.bundle, pc.token0, amount0, pc.token1, amount1)

	if err := pc.countTransaction(tx); err != nil {
		return err
	}

	mint.Sender = entity.StringPtr(entity.AddressID(sender))
	mint.Amount0 = numeric.Some(amount0)
	mint.Amount1 = numeric.Some(amount1)
	mint.LogIndex = entity.Uint64Ptr(uint64(event.LogIndex))
	mint.AmountUSD = numeric.Some(amountUSD)
	if err := tx.Save(mint); err != nil {
		return err
	}

	position, err := ensurePosition(ctx, tx, pc.pair.ID, mint.To)
	if err != nil {
		return err
	}
	if err := writeSnapshot(ctx, tx, position, event); err != nil {
		return err
	}

	_, err = updateDayBuckets(ctx, tx, &m.factoryID, pc.pair.ID, pc.token0, pc.token1, event.Timestamp)
	return err
}

// handleBurn completes the transaction's last burn with the withdrawn amounts.
// Sender and recipient keep the values staged by the Transfers.
func handleBurn(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error {
	a := &args{event: event}
	a.address("sender")
	rawAmount0 := a.amount("amount0")
	rawAmount1 := a.amount("amount1")
	a.address("to")
	if a.err != nil {
		return a.err
	}

	pc, err := m.loadPairContext(ctx, tx, event)
	if err != nil {
		return err
	}
	burnID, burn, err := lastBurn(ctx, tx, pc.txn)
	if err != nil {
		return err
	}
	if burn == nil {
		return MissingEntityError{Kind: entity.KindBurn, ID: lastRecordID(pc.txn.ID, burnID)}
	}

	amount0 := numeric.ConvertTokenToDecimal(rawAmount0, pc.token0.Decimals)
	amount1 := numeric.ConvertTokenToDecimal(rawAmount1, pc.token1.Decimals)
	amountUSD := liquidityAmountUSD(pc.bundle, pc.token0, amount0, pc.token1, amount1)

	if err := pc.countTransaction(tx); err != nil {
		return err
	}

	burn.Amount0 = numeric.Some(amount0)
	burn.Amount1 = numeric.Some(amount1)
	burn.LogIndex = entity.Uint64Ptr(uint64(event.LogIndex))
	burn.AmountUSD = numeric.Some(amountUSD)
	if err := tx.Save(burn); err != nil {
		return err
	}

	owner := entity.AddressID(zeroAddress)
	if burn.Sender != nil {
		owner = *burn.Sender
	}
	position, err := ensurePosition(ctx, tx, pc.pair.ID, owner)
	if err != nil {
		return err
	}
	if err := writeSnapshot(ctx, tx, position, event); err != nil {
		return err
	}

	_, err = updateDayBuckets(ctx, tx, &m.factoryID, pc.pair.ID, pc.token0, pc.token1, event.Timestamp)
	return err
}

func lastRecordID(txID, recordID string) string {
	if recordID != "" {
		return recordID
	}
	return txID + "-<none>"
}

// handleSwap records a swap and folds its volume into the pair, token, factory
// and bucket totals. Tracked volume counts whitelisted sides only; the derived
// value of both sides goes to the untracked totals.
func handleSwap(ctx context.Context, m *Module, tx *store.Batch, event *core.ParsedEvent) error {
	a := &args{event: event}
	sender := a.address("sender")
	rawAmount0In := a.amount("amount0In")
	rawAmount1In := a.amount("amount1In")
	rawAmount0Out := a.amount("amount0Out")
	rawAmount1Out := a.amount("amount1Out")
	to := a.address("to")
	if a.err != nil {
		return a.err
	}

	pair, err := load[entity.Pair](ctx, tx, entity.KindPair, entity.AddressID(event.Address))
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

	amount0In := numeric.ConvertTokenToDecimal(rawAmount0In, token0.Decimals)
	amount1In := numeric.ConvertTokenToDecimal(rawAmount1In, token1.Decimals)
	amount0Out := numeric.ConvertTokenToDecimal(rawAmount0Out, token0.Decimals)
	amount1Out := numeric.ConvertTokenToDecimal(rawAmount1Out, token1.Decimals)
	amount0Total := numeric.Add(amount0Out, amount0In)
	amount1Total := numeric.Add(amount1Out, amount1In)

	bundle, err := load[entity.Bundle](ctx, tx, entity.KindBundle, entity.BundleID)
	if err != nil {
		return err
	}
	price := bundle.NativeCurrencyPrice

	derivedNative, derivedUSD := numeric.Zero, numeric.Zero
	if token0.DerivedNativeCurrency.Valid && token1.DerivedNativeCurrency.Valid {
		sum := numeric.Add(
			numeric.Mul(token1.DerivedNativeCurrency.Decimal, amount1Total),
			numeric.Mul(token0.DerivedNativeCurrency.Decimal, amount0Total),
		)
		derivedNative = numeric.Div(sum, numeric.Two)
		derivedUSD = numeric.Mul(derivedNative, price)
	}

	trackedUSD := m.tracker.TrackedVolumeUSD(bundle, amount0Total, token0, amount1Total, token1, pair)
	trackedNative := numeric.Div(trackedUSD, price)

	token0.TradeVolume = numeric.Add(token0.TradeVolume, amount0Total)
	token0.TradeVolumeUSD = numeric.Add(token0.TradeVolumeUSD, trackedUSD)
	token0.UntrackedVolumeUSD = numeric.Add(token0.UntrackedVolumeUSD, derivedUSD)
	token0.TxCount++

	token1.TradeVolume = numeric.Add(token1.TradeVolume, amount1Total)
	token1.TradeVolumeUSD = numeric.Add(token1.TradeVolumeUSD, trackedUSD)
	token1.UntrackedVolumeUSD = numeric.Add(token1.UntrackedVolumeUSD, derivedUSD)
	token1.TxCount++

	pair.VolumeUSD = numeric.Add(pair.VolumeUSD, trackedUSD)
	pair.VolumeToken0 = numeric.Add(pair.VolumeToken0, amount0Total)
	pair.VolumeToken1 = numeric.Add(pair.VolumeToken1, amount1Total)
	pair.UntrackedVolumeUSD = numeric.Add(pair.UntrackedVolumeUSD, derivedUSD)
	pair.TxCount++

	factory, hasFactory, err := store.Find[entity.Factory](ctx, tx, entity.KindFactory, m.factoryID)
	if err != nil {
		return err
	}
	if hasFactory {
		factory.TotalVolumeUSD = numeric.Add(factory.TotalVolumeUSD, trackedUSD)
		factory.TotalVolumeNativeCurrency = numeric.Add(factory.TotalVolumeNativeCurrency, trackedNative)
		factory.UntrackedVolumeUSD = numeric.Add(factory.UntrackedVolumeUSD, derivedUSD)
		factory.TxCount++
	}

	for _, e := range []entity.Entity{pair, token0, token1} {
		if err := tx.Save(e); err != nil {
			return err
		}
	}
	if hasFactory {
		if err := tx.Save(factory); err != nil {
			return err
		}
	}

	txn, err := getOrCreateTransaction(ctx, tx, entity.HashID(event.TransactionHash), event.BlockNumber, event.Timestamp)
	if err != nil {
		return err
	}
	amountUSD := trackedUSD
	if amountUSD.IsZero() {
		amountUSD = derivedUSD
	}
	swap := &entity.Swap{
		ID:          entity.ChildID(txn.ID, int64(len(txn.Swaps))),
		Transaction: txn.ID,
		Timestamp:   txn.Timestamp,
		Pair:        pair.ID,
		Sender:      entity.AddressID(sender),
		From:        entity.AddressID(event.TransactionFrom),
		Amount0In:   amount0In,
		Amount1In:   amount1In,
		Amount0Out:  amount0Out,
		Amount1Out:  amount1Out,
		To:          entity.AddressID(to),
		LogIndex:    uint64(event.LogIndex),
		AmountUSD:   amountUSD,
	}
	if err := tx.Save(swap); err != nil {
		return err
	}
	txn.Swaps = append(txn.Swaps, swap.ID)
	if err := tx.Save(txn); err != nil {
		return err
	}

	var factoryID *string
	if hasFactory {
		factoryID = &m.factoryID
	}
	buckets, err := updateDayBuckets(ctx, tx, factoryID, pair.ID, token0, token1, event.Timestamp)
	if err != nil {
		return err
	}

	if buckets.factory != nil {
		day := buckets.factory
		day.DailyVolumeUSD = numeric.Add(day.DailyVolumeUSD, trackedUSD)
		day.DailyVolumeNativeCurrency = numeric.Add(day.DailyVolumeNativeCurrency, trackedNative)
		day.DailyVolumeUntracked = numeric.Add(day.DailyVolumeUntracked, derivedUSD)
		if err := tx.Save(day); err != nil {
			return err
		}
	}

	pairDay := buckets.pair
	pairDay.DailyVolumeToken0 = numeric.Add(pairDay.DailyVolumeToken0, amount0Total)
	pairDay.DailyVolumeToken1 = numeric.Add(pairDay.DailyVolumeToken1, amount1Total)
	pairDay.DailyVolumeUSD = numeric.Add(pairDay.DailyVolumeUSD, trackedUSD)

	pairHour := buckets.hour
	pairHour.HourlyVolumeToken0 = numeric.Add(pairHour.HourlyVolumeToken0, amount0Total)
	pairHour.HourlyVolumeToken1 = numeric.Add(pairHour.HourlyVolumeToken1, amount1Total)
	pairHour.HourlyVolumeUSD = numeric.Add(pairHour.HourlyVolumeUSD, trackedUSD)

	derived0 := numeric.OrZero(token0.DerivedNativeCurrency)
	derived1 := numeric.OrZero(token1.DerivedNativeCurrency)

	// token0's native volume is valued at token1's derived price, as the
	// reference subgraph does
	token0Day := buckets.token0
	token0Day.DailyVolumeToken = numeric.Add(token0Day.DailyVolumeToken, amount0Total)
	token0Day.DailyVolumeNativeCurrency = numeric.Add(token0Day.DailyVolumeNativeCurrency, numeric.Mul(amount0Total, derived1))
	token0Day.DailyVolumeUSD = numeric.Add(token0Day.DailyVolumeUSD, numeric.Mul(numeric.Mul(amount0Total, derived0), price))

	token1Day := buckets.token1
	token1Day.DailyVolumeToken = numeric.Add(token1Day.DailyVolumeToken, amount1Total)
	token1Day.DailyVolumeNativeCurrency = numeric.Add(token1Day.DailyVolumeNativeCurrency, numeric.Mul(amount1Total, derived1))
	token1Day.DailyVolumeUSD = numeric.Add(token1Day.DailyVolumeUSD, numeric.Mul(numeric.Mul(amount1Total, derived1), price))

	for _, e := range []entity.Entity{pairDay, pairHour, token0Day, token1Day} {
		if err := tx.Save(e); err != nil {
			return err
		}
	}

	m.logger.Debug().
		Str("pair", pair.ID).
		Str("amount_usd", amountUSD.String()).
		Str("tracked_usd", trackedUSD.String()).
		Uint64("block", event.BlockNumber).
		Msg("Swap processed")
	return nil
}

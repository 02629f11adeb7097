package honeyswap

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// correlator groups the liquidity token Transfers of one transaction into
// logical mint and burn records. Only the last entry of each list is ever
// inspected. Within a transaction, Transfers are expected to precede the Mint or
// Burn event that completes their record.
type correlator struct {
	tx   *store.Batch
	txn  *entity.Transaction
	pair *entity.Pair
}

func newCorrelator(tx *store.Batch, txn *entity.Transaction, pair *entity.Pair) *correlator {
	return &correlator{tx: tx, txn: txn, pair: pair}
}

// getOrCreateTransaction loads the transaction or starts an unsaved one.
func getOrCreateTransaction(ctx context.Context, r store.Reader, id string, block, timestamp uint64) (*entity.Transaction, error) {
	txn, ok, err := store.Find[entity.Transaction](ctx, r, entity.KindTransaction, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return txn, nil
	}
	return &entity.Transaction{
		ID:          id,
		BlockNumber: block,
		Timestamp:   timestamp,
		Mints:       []string{},
		Burns:       []string{},
		Swaps:       []string{},
	}, nil
}

// lastMint returns the id of the transaction's last mint and the stored mint,
// which is nil when the id dangles.
func lastMint(ctx context.Context, r store.Reader, txn *entity.Transaction) (string, *entity.Mint, error) {
	if len(txn.Mints) == 0 {
		return "", nil, nil
	}
	id := txn.Mints[len(txn.Mints)-1]
	mint, _, err := store.Find[entity.Mint](ctx, r, entity.KindMint, id)
	return id, mint, err
}

func lastBurn(ctx context.Context, r store.Reader, txn *entity.Transaction) (string, *entity.Burn, error) {
	if len(txn.Burns) == 0 {
		return "", nil, nil
	}
	id := txn.Burns[len(txn.Burns)-1]
	burn, _, err := store.Find[entity.Burn](ctx, r, entity.KindBurn, id)
	return id, burn, err
}

// mintTransfer handles liquidity minted to `to`. A new mint is opened unless
// the last one is still waiting for its Mint event.
func (c *correlator) mintTransfer(ctx context.Context, to string, value decimal.Decimal) error {
	c.pair.TotalSupply = numeric.Add(c.pair.TotalSupply, value)
	if err := c.tx.Save(c.pair); err != nil {
		return err
	}

	id, last, err := lastMint(ctx, c.tx, c.txn)
	if err != nil {
		return err
	}
	if id != "" && (last == nil || !last.Complete()) {
		return nil
	}

	mint := &entity.Mint{
		ID:          entity.ChildID(c.txn.ID, int64(len(c.txn.Mints))),
		Transaction: c.txn.ID,
		Timestamp:   c.txn.Timestamp,
		Pair:        c.pair.ID,
		To:          to,
		Liquidity:   value,
	}
	if err := c.tx.Save(mint); err != nil {
		return err
	}
	c.txn.Mints = append(c.txn.Mints, mint.ID)
	return nil
}

// burnStaged handles liquidity sent to the pair ahead of a burn. The record is
// completed by the following transfer to zero.
func (c *correlator) burnStaged(from, to string, value decimal.Decimal) error {
	burn := &entity.Burn{
		ID:            entity.ChildID(c.txn.ID, int64(len(c.txn.Burns))),
		Transaction:   c.txn.ID,
		Timestamp:     c.txn.Timestamp,
		Pair:          c.pair.ID,
		Liquidity:     value,
		Sender:        entity.StringPtr(from),
		To:            entity.StringPtr(to),
		NeedsComplete: true,
	}
	if err := c.tx.Save(burn); err != nil {
		return err
	}
	c.txn.Burns = append(c.txn.Burns, burn.ID)
	return nil
}

// burnTransfer handles liquidity burned by the pair. It completes a staged burn
// or opens a new one, and folds a pending protocol fee mint into it.
func (c *correlator) burnTransfer(ctx context.Context, value decimal.Decimal) error {
	c.pair.TotalSupply = numeric.Sub(c.pair.TotalSupply, value)
	if err := c.tx.Save(c.pair); err != nil {
		return err
	}

	_, staged, err := lastBurn(ctx, c.tx, c.txn)
	if err != nil {
		return err
	}
	reuse := staged != nil && staged.NeedsComplete

	burn := staged
	if !reuse {
		burn = &entity.Burn{
			ID:          entity.ChildID(c.txn.ID, int64(len(c.txn.Burns))),
			Transaction: c.txn.ID,
			Timestamp:   c.txn.Timestamp,
			Pair:        c.pair.ID,
			Liquidity:   value,
		}
	}

	mintID, mint, err := lastMint(ctx, c.tx, c.txn)
	if err != nil {
		return err
	}
	if mintID != "" && (mint == nil || !mint.Complete()) {
		if mint != nil {
			burn.FeeTo = entity.StringPtr(mint.To)
			burn.FeeLiquidity = numeric.Some(mint.Liquidity)
		}
		c.tx.Remove(entity.KindMint, mintID)
		c.txn.Mints = c.txn.Mints[:len(c.txn.Mints)-1]
	}

	if reuse {
		c.txn.Burns[len(c.txn.Burns)-1] = burn.ID
	} else {
		c.txn.Burns = append(c.txn.Burns, burn.ID)
	}
	burn.NeedsComplete = false
	return c.tx.Save(burn)
}

// flush writes the transaction. Every pair Transfer records its transaction,
// including plain transfers between users.
func (c *correlator) flush() error {
	return c.tx.Save(c.txn)
}

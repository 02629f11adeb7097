package honeyswap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/1hive/honeyswap-indexer/internal/chain"
	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/numeric"
)

// liquidityTokenDecimals is the decimals of every pair's liquidity token.
const liquidityTokenDecimals = 18

// BalanceReader decides a position's liquidity token balance after a Transfer.
type BalanceReader interface {
	LiquidityBalance(ctx context.Context, position *entity.LiquidityPosition, delta decimal.Decimal, block uint64) (decimal.Decimal, error)
}

// BalanceCaller reads an ERC20 balance at a block; chain.Contracts implements it.
type BalanceCaller interface {
	BalanceOf(ctx context.Context, token, owner common.Address, block uint64) (*big.Int, error)
}

// TokenReader reads ERC20 metadata; chain.Contracts implements it.
type TokenReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (*chain.TokenMetadata, error)
}

// LedgerBalances applies the transferred amount to the stored balance, so
// balances are reproducible from the event log alone.
type LedgerBalances struct{}

func (LedgerBalances) LiquidityBalance(_ context.Context, position *entity.LiquidityPosition, delta decimal.Decimal, _ uint64) (decimal.Decimal, error) {
	return numeric.Add(position.LiquidityTokenBalance, delta), nil
}

// ChainBalances reads balanceOf on the pair at the event block.
type ChainBalances struct {
	caller BalanceCaller
}

func NewChainBalances(caller BalanceCaller) *ChainBalances {
	return &ChainBalances{caller: caller}
}

func (c *ChainBalances) LiquidityBalance(ctx context.Context, position *entity.LiquidityPosition, _ decimal.Decimal, block uint64) (decimal.Decimal, error) {
	raw, err := c.caller.BalanceOf(ctx, common.HexToAddress(position.Pair), common.HexToAddress(position.User), block)
	if err != nil {
		return numeric.Zero, ChainCallError{Op: "balanceOf", Err: err}
	}
	return numeric.ConvertTokenToDecimal(raw, liquidityTokenDecimals), nil
}

var (
	_ BalanceReader = LedgerBalances{}
	_ BalanceReader = (*ChainBalances)(nil)
	_ BalanceCaller = (*chain.Contracts)(nil)
	_ TokenReader   = (*chain.Contracts)(nil)
)

// Package chain wraps the live contract reads the indexer needs: the factory's
// getPair, pair balanceOf and ERC20 metadata.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const factoryABIString = `[
	{"constant":true,"inputs":[{"name":"","type":"address"},{"name":"","type":"address"}],"name":"getPair","outputs":[{"name":"","type":"address"}],"type":"function"}
]`

const erc20ABIString = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var (
	factoryABI = mustParseABI(factoryABIString)
	erc20ABI   = mustParseABI(erc20ABIString)
)

// ErrNoDecimals means a token's decimals could not be read.
var ErrNoDecimals = errors.New("token decimals unavailable")

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// TokenMetadata is what the ERC20 contract reports about itself.
type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    int32
	TotalSupply *big.Int
}

// Contracts performs contract calls through any bind.ContractCaller, such as an
// ethclient.
type Contracts struct {
	caller  bind.ContractCaller
	factory *bind.BoundContract
	logger  zerolog.Logger
}

func NewContracts(caller bind.ContractCaller, factory common.Address, logger zerolog.Logger) *Contracts {
	return &Contracts{
		caller:  caller,
		factory: bind.NewBoundContract(factory, factoryABI, caller, nil, nil),
		logger:  logger.With().Str("component", "contracts").Logger(),
	}
}

// GetPair returns the pair for two tokens, or the zero address when none exists.
func (c *Contracts) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	results := []any{new(common.Address)}
	if err := c.factory.Call(&bind.CallOpts{Context: ctx}, &results, "getPair", tokenA, tokenB); err != nil {
		return common.Address{}, fmt.Errorf("getPair(%s, %s): %w", tokenA.Hex(), tokenB.Hex(), err)
	}
	return *results[0].(*common.Address), nil
}

// BalanceOf reads an ERC20 balance at a block.
func (c *Contracts) BalanceOf(ctx context.Context, token, owner common.Address, block uint64) (*big.Int, error) {
	contract := bind.NewBoundContract(token, erc20ABI, c.caller, nil, nil)
	opts := &bind.CallOpts{Context: ctx, BlockNumber: new(big.Int).SetUint64(block)}

	results := []any{new(*big.Int)}
	if err := contract.Call(opts, &results, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s at %d: %w", owner.Hex(), token.Hex(), block, err)
	}
	return *results[0].(**big.Int), nil
}

// TokenMetadata reads name, symbol, decimals and total supply. Name, symbol and
// supply fall back to defaults; decimals are required and their absence returns
// ErrNoDecimals.
func (c *Contracts) TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	metadata := &TokenMetadata{
		Name:        "unknown",
		Symbol:      "unknown",
		TotalSupply: big.NewInt(0),
	}
	contract := bind.NewBoundContract(token, erc20ABI, c.caller, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	results := []any{new(string)}
	if err := contract.Call(opts, &results, "name"); err != nil {
		c.logger.Debug().Err(err).Str("token", token.Hex()).Msg("Failed to fetch token name")
	} else if name := *results[0].(*string); name != "" {
		metadata.Name = name
	}

	results = []any{new(string)}
	if err := contract.Call(opts, &results, "symbol"); err != nil {
		c.logger.Debug().Err(err).Str("token", token.Hex()).Msg("Failed to fetch token symbol")
	} else if symbol := *results[0].(*string); symbol != "" {
		metadata.Symbol = symbol
	}

	results = []any{new(*big.Int)}
	if err := contract.Call(opts, &results, "totalSupply"); err != nil {
		c.logger.Debug().Err(err).Str("token", token.Hex()).Msg("Failed to fetch token total supply")
	} else if supply := *results[0].(**big.Int); supply != nil {
		metadata.TotalSupply = supply
	}

	results = []any{new(uint8)}
	if err := contract.Call(opts, &results, "decimals"); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDecimals, token.Hex(), err)
	}
	metadata.Decimals = int32(*results[0].(*uint8))

	return metadata, nil
}

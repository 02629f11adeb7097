package honeyswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1hive/honeyswap-indexer/internal/chain"
	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/modules/core"
	"github.com/1hive/honeyswap-indexer/internal/store"
	"github.com/1hive/honeyswap-indexer/internal/store/memory"
)

var (
	xdaiFactory = common.HexToAddress("0xa818b4f111ccac7aa31d0bcc0806d64f2e0737d7")
	wxdai       = common.HexToAddress("0xe91d153e0b41518a2ce8dd3d7944fa863463a97d")
	hny         = common.HexToAddress("0x71850b7e9ee3f13ab46d67167341e4bdc905eef9")
	unlisted    = common.HexToAddress("0x00000000000000000000000000000000000000aa")

	pairAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	router   = common.HexToAddress("0x1c232f01118cb8b424793ae03f870aa7d0ac7f77")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	feeSink  = common.HexToAddress("0x0000000000000000000000000000000000000fee")
)

type fakeTokens map[common.Address]*chain.TokenMetadata

func (f fakeTokens) TokenMetadata(_ context.Context, token common.Address) (*chain.TokenMetadata, error) {
	if m, ok := f[token]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", chain.ErrNoDecimals, token.Hex())
}

func defaultTokens() fakeTokens {
	return fakeTokens{
		wxdai: {Name: "Wrapped XDAI", Symbol: "WXDAI", Decimals: 18, TotalSupply: big.NewInt(5_000_000)},
		hny:   {Name: "Honey", Symbol: "HNY", Decimals: 18, TotalSupply: big.NewInt(1_000_000)},
	}
}

func testManifest(networkName string) *core.Manifest {
	addr := xdaiFactory.Hex()
	return &core.Manifest{
		Name:    "honeyswap",
		Version: "1.0.0",
		DataSources: []core.DataSource{{
			Kind:    "ethereum/contract",
			Name:    "Factory",
			Network: networkName,
			Source:  core.DataSourceSource{Address: &addr, ABI: "Factory"},
			Mapping: core.DataSourceMapping{
				Kind: "ethereum/events",
				EventHandlers: []core.EventHandler{
					{Event: "PairCreated(indexed address,indexed address,address,uint256)", Handler: "handleNewPair"},
				},
			},
		}},
	}
}

// harness feeds ABI-encoded logs through the module, one committed batch per event.
type harness struct {
	t       *testing.T
	ctx     context.Context
	backend *memory.Store
	module  *Module

	block     uint64
	timestamp uint64
	logIndex  uint
}

func newHarness(t *testing.T, tokens TokenReader) *harness {
	t.Helper()
	m, err := NewModule(testManifest("xdai"), Options{Tokens: tokens}, zerolog.Nop())
	require.NoError(t, err)
	return &harness{
		t:         t,
		ctx:       context.Background(),
		backend:   memory.New(),
		module:    m,
		block:     14155943,
		timestamp: 1_600_000_000,
	}
}

// nextBlock moves to a new block an hour later.
func (h *harness) nextBlock() {
	h.block++
	h.timestamp += 3600
	h.logIndex = 0
}

// encode builds a log for the named event. args follow the ABI input order.
func (h *harness) encode(contract abi.ABI, name string, emitter common.Address, txHash common.Hash, args ...interface{}) *core.RawEvent {
	h.t.Helper()
	ev, ok := contract.Events[name]
	require.True(h.t, ok, "unknown event %s", name)
	require.Len(h.t, args, len(ev.Inputs))

	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, input := range ev.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		switch v := args[i].(type) {
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		case *big.Int:
			topics = append(topics, common.BigToHash(v))
		default:
			h.t.Fatalf("unsupported indexed argument %T", v)
		}
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(h.t, err)

	raw := &core.RawEvent{
		Log: types.Log{
			Address:     emitter,
			Topics:      topics,
			Data:        packed,
			BlockNumber: h.block,
			TxHash:      txHash,
			Index:       h.logIndex,
		},
		Timestamp: h.timestamp,
		TxFrom:    alice,
	}
	h.logIndex++
	return raw
}

func (h *harness) apply(raw *core.RawEvent) {
	h.t.Helper()
	batch := store.NewBatch(h.backend)
	require.NoError(h.t, h.module.HandleEvent(h.ctx, batch, raw))
	require.NoError(h.t, batch.Commit(h.ctx))
}

func (h *harness) pairCreated(token0, token1, pair common.Address, index int64) {
	h.apply(h.encode(FactoryABI, "PairCreated", xdaiFactory, common.HexToHash("0xc0"), token0, token1, pair, big.NewInt(index)))
}

func (h *harness) transfer(tx common.Hash, from, to common.Address, value *big.Int) {
	h.apply(h.encode(PairABI, "Transfer", pairAddr, tx, from, to, value))
}

func (h *harness) sync(tx common.Hash, reserve0, reserve1 *big.Int) {
	h.apply(h.encode(PairABI, "Sync", pairAddr, tx, reserve0, reserve1))
}

func (h *harness) mint(tx common.Hash, amount0, amount1 *big.Int) {
	h.apply(h.encode(PairABI, "Mint", pairAddr, tx, router, amount0, amount1))
}

func (h *harness) burn(tx common.Hash, amount0, amount1 *big.Int, to common.Address) {
	h.apply(h.encode(PairABI, "Burn", pairAddr, tx, router, amount0, amount1, to))
}

func (h *harness) swap(tx common.Hash, amount0In, amount1In, amount0Out, amount1Out *big.Int, to common.Address) {
	h.apply(h.encode(PairABI, "Swap", pairAddr, tx, router, amount0In, amount1In, amount0Out, amount1Out, to))
}

// provideLiquidity creates the HNY/WXDAI pair and runs a first deposit of
// `liquidity` LP tokens to alice against the given reserves.
func (h *harness) provideLiquidity(tx common.Hash, liquidity, reserve0, reserve1 *big.Int) {
	h.pairCreated(hny, wxdai, pairAddr, 1)
	h.nextBlock()
	h.transfer(tx, common.Address{}, common.Address{}, big.NewInt(1000))
	h.transfer(tx, common.Address{}, alice, liquidity)
	h.sync(tx, reserve0, reserve1)
	h.mint(tx, reserve0, reserve1)
}

func loadEntity[T any](h *harness, kind entity.Kind, id string) *T {
	h.t.Helper()
	v, err := store.Load[T](h.ctx, h.backend, kind, id)
	require.NoError(h.t, err, "%s %s", kind, id)
	return v
}

func (h *harness) pair() *entity.Pair {
	return loadEntity[entity.Pair](h, entity.KindPair, entity.AddressID(pairAddr))
}

func (h *harness) token(addr common.Address) *entity.Token {
	return loadEntity[entity.Token](h, entity.KindToken, entity.AddressID(addr))
}

func (h *harness) factory() *entity.Factory {
	return loadEntity[entity.Factory](h, entity.KindFactory, entity.AddressID(xdaiFactory))
}

func (h *harness) position(user common.Address) *entity.LiquidityPosition {
	return loadEntity[entity.LiquidityPosition](h, entity.KindLiquidityPosition,
		entity.PositionID(entity.AddressID(pairAddr), entity.AddressID(user)))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", field, want, got.String())
}

// failingBackend fails every read as a storage outage would.
type failingBackend struct{}

func (failingBackend) Get(context.Context, entity.Kind, string) ([]byte, error) {
	return nil, &store.BackendError{Op: "get", Err: errors.New("connection refused")}
}

func (failingBackend) Apply(context.Context, []store.Mutation) error {
	return &store.BackendError{Op: "apply", Err: errors.New("connection refused")}
}

// Package entity holds the read-model documents derived from pair and factory events.
// Every entity is addressed by (kind, id) and stored as a JSON document.
package entity

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Kind names an entity collection.
type Kind string

const (
	KindFactory                   Kind = "Factory"
	KindBundle                    Kind = "Bundle"
	KindPair                      Kind = "Pair"
	KindPairLookup                Kind = "PairLookup"
	KindToken                     Kind = "Token"
	KindUser                      Kind = "User"
	KindLiquidityPosition         Kind = "LiquidityPosition"
	KindLiquidityPositionSnapshot Kind = "LiquidityPositionSnapshot"
	KindTransaction               Kind = "Transaction"
	KindMint                      Kind = "Mint"
	KindBurn                      Kind = "Burn"
	KindSwap                      Kind = "Swap"
	KindFactoryDayData            Kind = "FactoryDayData"
	KindPairDayData               Kind = "PairDayData"
	KindPairHourData              Kind = "PairHourData"
	KindTokenDayData              Kind = "TokenDayData"
	KindIndexerState              Kind = "IndexerState"
)

// BundleID is the id of the singleton Bundle.
const BundleID = "1"

// Entity is implemented by every stored document.
type Entity interface {
	EntityKind() Kind
	EntityID() string
}

// AddressID is the canonical id of an address-keyed entity.
func AddressID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// HashID is the canonical id of a transaction.
func HashID(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

// ChildID builds "<parent>-<n>" ids used for records, positions and buckets.
func ChildID(parent string, n int64) string {
	return parent + "-" + strconv.FormatInt(n, 10)
}

// PositionID is "<pair>-<user>".
func PositionID(pair, user string) string {
	return pair + "-" + user
}

// PairLookupID keys the pair registry by an ordered token tuple.
func PairLookupID(tokenA, tokenB string) string {
	return tokenA + "-" + tokenB
}

type Factory struct {
	ID                           string          `json:"id"`
	PairCount                    int64           `json:"pairCount"`
	TotalVolumeUSD               decimal.Decimal `json:"totalVolumeUSD"`
	TotalVolumeNativeCurrency    decimal.Decimal `json:"totalVolumeNativeCurrency"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untrackedVolumeUSD"`
	TotalLiquidityUSD            decimal.Decimal `json:"totalLiquidityUSD"`
	TotalLiquidityNativeCurrency decimal.Decimal `json:"totalLiquidityNativeCurrency"`
	TxCount                      int64           `json:"txCount"`
}

func (f *Factory) EntityKind() Kind { return KindFactory }
func (f *Factory) EntityID() string { return f.ID }

type Bundle struct {
	ID                  string          `json:"id"`
	NativeCurrencyPrice decimal.Decimal `json:"nativeCurrencyPrice"`
}

func (b *Bundle) EntityKind() Kind { return KindBundle }
func (b *Bundle) EntityID() string { return b.ID }

type Token struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Decimals    int32           `json:"decimals"`
	TotalSupply decimal.Decimal `json:"totalSupply"`

	TradeVolume        decimal.Decimal `json:"tradeVolume"`
	TradeVolumeUSD     decimal.Decimal `json:"tradeVolumeUSD"`
	UntrackedVolumeUSD decimal.Decimal `json:"untrackedVolumeUSD"`
	TxCount            int64           `json:"txCount"`
	TotalLiquidity     decimal.Decimal `json:"totalLiquidity"`

	// DerivedNativeCurrency is invalid until the first Sync prices the token.
	DerivedNativeCurrency decimal.NullDecimal `json:"derivedNativeCurrency"`
}

func (t *Token) EntityKind() Kind { return KindToken }
func (t *Token) EntityID() string { return t.ID }

type Pair struct {
	ID     string `json:"id"`
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`

	Reserve0    decimal.Decimal `json:"reserve0"`
	Reserve1    decimal.Decimal `json:"reserve1"`
	TotalSupply decimal.Decimal `json:"totalSupply"`

	ReserveNativeCurrency        decimal.Decimal `json:"reserveNativeCurrency"`
	ReserveUSD                   decimal.Decimal `json:"reserveUSD"`
	TrackedReserveNativeCurrency decimal.Decimal `json:"trackedReserveNativeCurrency"`

	Token0Price decimal.Decimal `json:"token0Price"`
	Token1Price decimal.Decimal `json:"token1Price"`

	VolumeToken0       decimal.Decimal `json:"volumeToken0"`
	VolumeToken1       decimal.Decimal `json:"volumeToken1"`
	VolumeUSD          decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD decimal.Decimal `json:"untrackedVolumeUSD"`
	TxCount            int64           `json:"txCount"`

	LiquidityProviderCount int64 `json:"liquidityProviderCount"`

	CreatedAtTimestamp   uint64 `json:"createdAtTimestamp"`
	CreatedAtBlockNumber uint64 `json:"createdAtBlockNumber"`
}

func (p *Pair) EntityKind() Kind { return KindPair }
func (p *Pair) EntityID() string { return p.ID }

// PairLookup mirrors the factory's getPair mapping.
type PairLookup struct {
	ID   string `json:"id"`
	Pair string `json:"pair"`
}

func (l *PairLookup) EntityKind() Kind { return KindPairLookup }
func (l *PairLookup) EntityID() string { return l.ID }

type User struct {
	ID         string          `json:"id"`
	UsdSwapped decimal.Decimal `json:"usdSwapped"`
}

func (u *User) EntityKind() Kind { return KindUser }
func (u *User) EntityID() string { return u.ID }

type LiquidityPosition struct {
	ID                    string          `json:"id"`
	User                  string          `json:"user"`
	Pair                  string          `json:"pair"`
	LiquidityTokenBalance decimal.Decimal `json:"liquidityTokenBalance"`
}

func (p *LiquidityPosition) EntityKind() Kind { return KindLiquidityPosition }
func (p *LiquidityPosition) EntityID() string { return p.ID }

type LiquidityPositionSnapshot struct {
	ID                        string          `json:"id"`
	LiquidityPosition         string          `json:"liquidityPosition"`
	Timestamp                 uint64          `json:"timestamp"`
	Block                     uint64          `json:"block"`
	User                      string          `json:"user"`
	Pair                      string          `json:"pair"`
	Token0PriceUSD            decimal.Decimal `json:"token0PriceUSD"`
	Token1PriceUSD            decimal.Decimal `json:"token1PriceUSD"`
	Reserve0                  decimal.Decimal `json:"reserve0"`
	Reserve1                  decimal.Decimal `json:"reserve1"`
	ReserveUSD                decimal.Decimal `json:"reserveUSD"`
	LiquidityTokenTotalSupply decimal.Decimal `json:"liquidityTokenTotalSupply"`
	LiquidityTokenBalance     decimal.Decimal `json:"liquidityTokenBalance"`
}

func (s *LiquidityPositionSnapshot) EntityKind() Kind { return KindLiquidityPositionSnapshot }
func (s *LiquidityPositionSnapshot) EntityID() string { return s.ID }

type Transaction struct {
	ID          string   `json:"id"`
	BlockNumber uint64   `json:"blockNumber"`
	Timestamp   uint64   `json:"timestamp"`
	Mints       []string `json:"mints"`
	Burns       []string `json:"burns"`
	Swaps       []string `json:"swaps"`
}

func (t *Transaction) EntityKind() Kind { return KindTransaction }
func (t *Transaction) EntityID() string { return t.ID }

type Mint struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   uint64          `json:"timestamp"`
	Pair        string          `json:"pair"`
	To          string          `json:"to"`
	Liquidity   decimal.Decimal `json:"liquidity"`

	// Sender is nil until the Mint contract event completes the record.
	Sender    *string             `json:"sender"`
	Amount0   decimal.NullDecimal `json:"amount0"`
	Amount1   decimal.NullDecimal `json:"amount1"`
	LogIndex  *uint64             `json:"logIndex"`
	AmountUSD decimal.NullDecimal `json:"amountUSD"`

	FeeTo        *string             `json:"feeTo"`
	FeeLiquidity decimal.NullDecimal `json:"feeLiquidity"`
}

func (m *Mint) EntityKind() Kind { return KindMint }
func (m *Mint) EntityID() string { return m.ID }

// Complete reports whether the paired Mint contract event has been applied.
func (m *Mint) Complete() bool { return m.Sender != nil }

type Burn struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   uint64          `json:"timestamp"`
	Pair        string          `json:"pair"`
	Liquidity   decimal.Decimal `json:"liquidity"`

	Sender    *string             `json:"sender"`
	Amount0   decimal.NullDecimal `json:"amount0"`
	Amount1   decimal.NullDecimal `json:"amount1"`
	To        *string             `json:"to"`
	LogIndex  *uint64             `json:"logIndex"`
	AmountUSD decimal.NullDecimal `json:"amountUSD"`

	NeedsComplete bool `json:"needsComplete"`

	FeeTo        *string             `json:"feeTo"`
	FeeLiquidity decimal.NullDecimal `json:"feeLiquidity"`
}

func (b *Burn) EntityKind() Kind { return KindBurn }
func (b *Burn) EntityID() string { return b.ID }

type Swap struct {
	ID          string `json:"id"`
	Transaction string `json:"transaction"`
	Timestamp   uint64 `json:"timestamp"`
	Pair        string `json:"pair"`

	Sender     string          `json:"sender"`
	From       string          `json:"from"`
	Amount0In  decimal.Decimal `json:"amount0In"`
	Amount1In  decimal.Decimal `json:"amount1In"`
	Amount0Out decimal.Decimal `json:"amount0Out"`
	Amount1Out decimal.Decimal `json:"amount1Out"`
	To         string          `json:"to"`
	LogIndex   uint64          `json:"logIndex"`

	AmountUSD decimal.Decimal `json:"amountUSD"`
}

func (s *Swap) EntityKind() Kind { return KindSwap }
func (s *Swap) EntityID() string { return s.ID }

// IndexerState is the replay cursor written with every committed event.
type IndexerState struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint64 `json:"logIndex"`
}

func (s *IndexerState) EntityKind() Kind { return KindIndexerState }
func (s *IndexerState) EntityID() string { return s.ID }

// Covers reports whether the event at (block, logIndex) is already reflected.
func (s *IndexerState) Covers(block, logIndex uint64) bool {
	if s == nil {
		return false
	}
	if block != s.BlockNumber {
		return block < s.BlockNumber
	}
	return logIndex <= s.LogIndex
}

func StringPtr(s string) *string { return &s }

func Uint64Ptr(n uint64) *uint64 { return &n }

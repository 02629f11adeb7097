package entity

import "github.com/shopspring/decimal"

const (
	SecondsPerDay  = 86400
	SecondsPerHour = 3600
)

// DayID is the UTC day bucket of a unix timestamp.
func DayID(timestamp uint64) int64 { return int64(timestamp / SecondsPerDay) }

// HourIndex is the UTC hour bucket of a unix timestamp.
func HourIndex(timestamp uint64) int64 { return int64(timestamp / SecondsPerHour) }

type FactoryDayData struct {
	ID                           string          `json:"id"`
	Date                         int64           `json:"date"`
	DailyVolumeNativeCurrency    decimal.Decimal `json:"dailyVolumeNativeCurrency"`
	DailyVolumeUSD               decimal.Decimal `json:"dailyVolumeUSD"`
	DailyVolumeUntracked         decimal.Decimal `json:"dailyVolumeUntracked"`
	TotalVolumeNativeCurrency    decimal.Decimal `json:"totalVolumeNativeCurrency"`
	TotalLiquidityNativeCurrency decimal.Decimal `json:"totalLiquidityNativeCurrency"`
	TotalVolumeUSD               decimal.Decimal `json:"totalVolumeUSD"`
	TotalLiquidityUSD            decimal.Decimal `json:"totalLiquidityUSD"`
	TxCount                      int64           `json:"txCount"`
}

func (d *FactoryDayData) EntityKind() Kind { return KindFactoryDayData }
func (d *FactoryDayData) EntityID() string { return d.ID }

type PairDayData struct {
	ID          string `json:"id"`
	Date        int64  `json:"date"`
	PairAddress string `json:"pairAddress"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`

	Reserve0    decimal.Decimal `json:"reserve0"`
	Reserve1    decimal.Decimal `json:"reserve1"`
	TotalSupply decimal.Decimal `json:"totalSupply"`
	ReserveUSD  decimal.Decimal `json:"reserveUSD"`

	DailyVolumeToken0 decimal.Decimal `json:"dailyVolumeToken0"`
	DailyVolumeToken1 decimal.Decimal `json:"dailyVolumeToken1"`
	DailyVolumeUSD    decimal.Decimal `json:"dailyVolumeUSD"`
	DailyTxns         int64           `json:"dailyTxns"`
}

func (d *PairDayData) EntityKind() Kind { return KindPairDayData }
func (d *PairDayData) EntityID() string { return d.ID }

type PairHourData struct {
	ID            string `json:"id"`
	HourStartUnix int64  `json:"hourStartUnix"`
	Pair          string `json:"pair"`

	Reserve0   decimal.Decimal `json:"reserve0"`
	Reserve1   decimal.Decimal `json:"reserve1"`
	ReserveUSD decimal.Decimal `json:"reserveUSD"`

	HourlyVolumeToken0 decimal.Decimal `json:"hourlyVolumeToken0"`
	HourlyVolumeToken1 decimal.Decimal `json:"hourlyVolumeToken1"`
	HourlyVolumeUSD    decimal.Decimal `json:"hourlyVolumeUSD"`
	HourlyTxns         int64           `json:"hourlyTxns"`
}

func (d *PairHourData) EntityKind() Kind { return KindPairHourData }
func (d *PairHourData) EntityID() string { return d.ID }

type TokenDayData struct {
	ID    string `json:"id"`
	Date  int64  `json:"date"`
	Token string `json:"token"`

	DailyVolumeToken          decimal.Decimal `json:"dailyVolumeToken"`
	DailyVolumeNativeCurrency decimal.Decimal `json:"dailyVolumeNativeCurrency"`
	DailyVolumeUSD            decimal.Decimal `json:"dailyVolumeUSD"`
	DailyTxns                 int64           `json:"dailyTxns"`

	TotalLiquidityToken          decimal.Decimal `json:"totalLiquidityToken"`
	TotalLiquidityNativeCurrency decimal.Decimal `json:"totalLiquidityNativeCurrency"`
	TotalLiquidityUSD            decimal.Decimal `json:"totalLiquidityUSD"`

	PriceUSD decimal.Decimal `json:"priceUSD"`
}

func (d *TokenDayData) EntityKind() Kind { return KindTokenDayData }
func (d *TokenDayData) EntityID() string { return d.ID }

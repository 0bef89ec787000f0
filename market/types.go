// Package market defines the normalized data types shared by the
// ingestion and aggregation stages. Prices and sizes are carried as
// exact decimal strings end-to-end; nothing in this package or its
// consumers converts them through binary floating point.
package market

import "time"

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceUpdate is one normalized trade tick from an exchange.
// Immutable once constructed by an adapter.
type PriceUpdate struct {
	Symbol     string // canonical form, e.g. "BTC/USD"
	Exchange   string
	Price      string
	Size       string
	Side       Side
	ExchangeTS time.Time // exchange-reported trade time, UTC
	ReceivedTS time.Time // client ingestion time, UTC; latency only, never bucketing
}

// Candle is a historical bar returned by an adapter's REST fetch.
type Candle struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
}

// AggregatedDataPoint is a finalized bar produced by a timeframe
// aggregator. All decimal fields are fixed to 8 fractional digits.
type AggregatedDataPoint struct {
	Symbol           string
	Timeframe        string
	BucketStart      time.Time
	VWAP             string
	CumulativeVolume string
	LastPrice        string
	HighPrice        string
	LowPrice         string
	OpenPrice        string
}

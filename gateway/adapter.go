// Package gateway contains the per-exchange adapters and the connection
// manager supervising them. Each adapter owns every quirk of its
// exchange: symbol translation, subscription handshake, keepalive
// replies and message-shape discrimination.
package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cryptochart/market"
)

// Adapter streams normalized trades and fetches historical bars for one
// exchange and one symbol.
type Adapter interface {
	Name() string

	// Stream connects, subscribes and pushes decoded ticks onto out
	// until ctx is cancelled. Transport failures are retried internally
	// with exponential backoff; a non-nil return means the retry budget
	// is exhausted (or ctx ended) and the stream will not restart itself.
	Stream(ctx context.Context, out chan<- market.PriceUpdate) error

	// FetchHistorical returns bars oldest first. A timeframe the
	// exchange cannot serve yields an empty result, not an error.
	FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error)
}

// Constructor builds an adapter for a canonical symbol.
type Constructor func(symbol string, log *zap.Logger) Adapter

// Registry maps the exchange names used in configuration to adapter
// constructors.
var Registry = map[string]Constructor{
	"Binance":           func(s string, l *zap.Logger) Adapter { return NewBinance(s, l) },
	"Coinbase Exchange": func(s string, l *zap.Logger) Adapter { return NewCoinbase(s, l) },
	"Bitstamp":          func(s string, l *zap.Logger) Adapter { return NewBitstamp(s, l) },
	"Kraken":            func(s string, l *zap.Logger) Adapter { return NewKraken(s, l) },
	"Bitvavo":           func(s string, l *zap.Logger) Adapter { return NewBitvavo(s, l) },
	"OKX":               func(s string, l *zap.Logger) Adapter { return NewOKX(s, l) },
	"Bitget":            func(s string, l *zap.Logger) Adapter { return NewBitget(s, l) },
}

// HistoricalFetchError reports a failed historical-data request.
type HistoricalFetchError struct {
	Exchange string
	Err      error
}

func (e *HistoricalFetchError) Error() string {
	return fmt.Sprintf("%s historical fetch: %v", e.Exchange, e.Err)
}

func (e *HistoricalFetchError) Unwrap() error { return e.Err }

// Package aggregator turns the normalized trade stream into fixed-
// duration OHLCV bars with VWAP. All arithmetic is exact decimal; no
// value on this path ever passes through binary floating point.
package aggregator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptochart/bus"
	"cryptochart/market"
	"cryptochart/metrics"
)

type priceSize struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// TimeframeAggregator buckets one symbol's trades into one timeframe.
// Trades must be presented in non-decreasing exchange-timestamp order;
// a late trade belonging to an already finalized bucket is folded into
// the current bucket instead (no retroactive correction).
//
// A point is published only when a bucket finalizes. Consumers wanting
// a per-trade live price take it from the raw-trade bus.
type TimeframeAggregator struct {
	symbol    string
	timeframe string
	duration  time.Duration
	out       *bus.Bus[market.AggregatedDataPoint]

	bucketStart time.Time // zero while no bucket is open
	trades      []priceSize
	lastPrice   decimal.Decimal
	openPrice   decimal.Decimal
	highPrice   decimal.Decimal
	lowPrice    decimal.Decimal
}

// NewTimeframe fails fast on an unparseable timeframe label; that is a
// configuration bug, not a runtime condition.
func NewTimeframe(symbol, timeframe string, out *bus.Bus[market.AggregatedDataPoint]) (*TimeframeAggregator, error) {
	d, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	return &TimeframeAggregator{
		symbol:    symbol,
		timeframe: timeframe,
		duration:  d,
		out:       out,
	}, nil
}

// AddTrade accepts one tick: opens a bucket if none is open, finalizes
// and rolls over when the tick crosses the bucket boundary, then folds
// the tick into the open bucket.
func (a *TimeframeAggregator) AddTrade(u market.PriceUpdate) error {
	price, err := decimal.NewFromString(u.Price)
	if err != nil {
		return fmt.Errorf("trade price %q: %w", u.Price, err)
	}
	size, err := decimal.NewFromString(u.Size)
	if err != nil {
		return fmt.Errorf("trade size %q: %w", u.Size, err)
	}

	ts := u.ExchangeTS.UTC()
	if a.bucketStart.IsZero() {
		a.openBucket(ts, price)
	}
	if !ts.Before(a.bucketStart.Add(a.duration)) {
		a.finalize()
		a.openBucket(ts, price)
	}

	a.trades = append(a.trades, priceSize{price: price, size: size})
	a.lastPrice = price
	if price.GreaterThan(a.highPrice) {
		a.highPrice = price
	}
	if price.LessThan(a.lowPrice) {
		a.lowPrice = price
	}
	return nil
}

// openBucket aligns the bucket start to the epoch, not to the first
// trade seen.
func (a *TimeframeAggregator) openBucket(ts time.Time, price decimal.Decimal) {
	a.bucketStart = ts.Truncate(a.duration)
	a.trades = a.trades[:0]
	a.openPrice = price
	a.highPrice = price
	a.lowPrice = price
}

// finalize computes the closed bucket's VWAP and publishes it. A bucket
// with no trades, or zero total volume, publishes nothing.
func (a *TimeframeAggregator) finalize() {
	if len(a.trades) == 0 {
		return
	}
	totalVolume := decimal.Zero
	notional := decimal.Zero
	for _, t := range a.trades {
		totalVolume = totalVolume.Add(t.size)
		notional = notional.Add(t.price.Mul(t.size))
	}
	if totalVolume.IsZero() {
		return
	}
	vwap := notional.DivRound(totalVolume, 8)

	a.out.Publish(market.AggregatedDataPoint{
		Symbol:           a.symbol,
		Timeframe:        a.timeframe,
		BucketStart:      a.bucketStart,
		VWAP:             vwap.StringFixed(8),
		CumulativeVolume: totalVolume.StringFixed(8),
		LastPrice:        a.lastPrice.StringFixed(8),
		HighPrice:        a.highPrice.StringFixed(8),
		LowPrice:         a.lowPrice.StringFixed(8),
		OpenPrice:        a.openPrice.StringFixed(8),
	})
	metrics.CandlesFinalized.WithLabelValues(a.timeframe).Inc()
}

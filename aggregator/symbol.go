package aggregator

import (
	"context"

	"go.uber.org/zap"

	"cryptochart/bus"
	"cryptochart/market"
)

// TradeSink receives normalized trades; satisfied by
// *TimeframeAggregator and by counting fakes in tests.
type TradeSink interface {
	AddTrade(market.PriceUpdate) error
}

// SymbolAggregator subscribes to the raw-trade bus, filters to its own
// symbol and distributes each accepted tick to every owned timeframe
// aggregator, fully, before dequeuing the next tick. That sequential
// join is what keeps all timeframes observing the same global order.
type SymbolAggregator struct {
	symbol string
	raw    *bus.Bus[market.PriceUpdate]
	sinks  []TradeSink
	log    *zap.Logger

	sub    chan market.PriceUpdate
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSymbol builds one TimeframeAggregator per timeframe label. Any
// invalid label fails construction.
func NewSymbol(symbol string, timeframes []string,
	raw *bus.Bus[market.PriceUpdate], out *bus.Bus[market.AggregatedDataPoint],
	log *zap.Logger) (*SymbolAggregator, error) {

	sinks := make([]TradeSink, 0, len(timeframes))
	for _, tf := range timeframes {
		tfa, err := NewTimeframe(symbol, tf, out)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tfa)
	}
	return newSymbolWithSinks(symbol, sinks, raw, log), nil
}

func newSymbolWithSinks(symbol string, sinks []TradeSink, raw *bus.Bus[market.PriceUpdate], log *zap.Logger) *SymbolAggregator {
	return &SymbolAggregator{
		symbol: symbol,
		raw:    raw,
		sinks:  sinks,
		log:    log.With(zap.String("symbol", symbol)),
	}
}

// Start registers the bus subscription and launches the processing
// loop. Calling Start twice without Stop leaks; callers pair them.
func (s *SymbolAggregator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.sub = s.raw.Subscribe()
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the loop, awaits its exit and drops the subscription so
// no registration leaks on the bus. An open, unfinalized bucket is
// simply discarded.
func (s *SymbolAggregator) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.raw.Unsubscribe(s.sub)
	s.cancel = nil
}

func (s *SymbolAggregator) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.sub:
			if u.Symbol != s.symbol {
				continue
			}
			for _, sink := range s.sinks {
				if err := sink.AddTrade(u); err != nil {
					s.log.Warn("trade rejected",
						zap.String("exchange", u.Exchange),
						zap.Error(err))
				}
			}
		}
	}
}

package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"cryptochart/bus"
	"cryptochart/market"
	"cryptochart/metrics"
)

// ConnectionManager owns the adapters streaming for the currently
// selected symbol. Each adapter runs in its own supervising goroutine;
// one exchange failing never stops its siblings.
type ConnectionManager struct {
	rawBus       *bus.Bus[market.PriceUpdate]
	integrations map[string][]string // symbol -> ordered exchange names
	registry     map[string]Constructor
	log          *zap.Logger

	mu     sync.Mutex
	symbol string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConnectionManager(rawBus *bus.Bus[market.PriceUpdate], integrations map[string][]string, log *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		rawBus:       rawBus,
		integrations: integrations,
		registry:     Registry,
		log:          log,
	}
}

// SwitchSymbol stops the running adapters and starts one per exchange
// configured for symbol. A no-op when symbol is already active. The
// effects are asynchronous; callers observe them on the buses.
func (m *ConnectionManager) SwitchSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.symbol == symbol {
		return
	}
	m.stopLocked()

	names := m.integrations[symbol]
	// Adapter lifetime is owned by the manager, not by the caller of
	// SwitchSymbol; the command returns before streams settle.
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.symbol = symbol

	started := 0
	for _, name := range names {
		ctor, ok := m.registry[name]
		if !ok {
			m.log.Warn("no adapter registered", zap.String("exchange", name))
			continue
		}
		adapter := ctor(symbol, m.log)
		m.wg.Add(1)
		go m.runAdapter(ctx, adapter)
		started++
	}
	m.log.Info("adapters started", zap.String("symbol", symbol), zap.Int("count", started))
}

// StopAll cancels and awaits every supervising goroutine. Idempotent.
func (m *ConnectionManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *ConnectionManager) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil
	m.symbol = ""
	m.log.Info("all adapter connections stopped")
}

// runAdapter pumps one adapter's ticks onto the raw-trade bus until its
// stream ends.
func (m *ConnectionManager) runAdapter(ctx context.Context, adapter Adapter) {
	defer m.wg.Done()

	out := make(chan market.PriceUpdate, 128)
	errc := make(chan error, 1)
	go func() {
		errc <- adapter.Stream(ctx, out)
		close(out)
	}()

	for u := range out {
		m.rawBus.Publish(u)
		metrics.TicksIngested.WithLabelValues(u.Exchange).Inc()
		if delay := u.ReceivedTS.Sub(u.ExchangeTS); delay > 0 {
			metrics.IngestLatency.Observe(delay.Seconds())
		}
	}

	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		// Retry budget exhausted. Terminal for this adapter only.
		metrics.AdapterFailures.WithLabelValues(adapter.Name()).Inc()
		m.log.Error("adapter stream terminated",
			zap.String("exchange", adapter.Name()),
			zap.Error(err))
	}
}

// ActiveSymbol returns the symbol adapters are currently serving, or ""
// when none are running.
func (m *ConnectionManager) ActiveSymbol() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbol
}

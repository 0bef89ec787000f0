// Package metrics provides Prometheus metrics for the aggregation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksIngested counts normalized trade ticks published onto the
	// raw-trade bus, per source exchange.
	TicksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptochart",
		Name:      "ticks_ingested_total",
		Help:      "Normalized trade ticks ingested per exchange.",
	}, []string{"exchange"})

	// TicksDropped counts messages dropped by a full subscriber queue.
	TicksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptochart",
		Name:      "bus_dropped_total",
		Help:      "Messages dropped on full subscriber queues, per bus.",
	}, []string{"bus"})

	// CandlesFinalized counts finalized buckets published downstream.
	CandlesFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptochart",
		Name:      "candles_finalized_total",
		Help:      "Finalized OHLCV buckets published, per timeframe.",
	}, []string{"timeframe"})

	// IngestLatency observes client-received minus exchange-reported
	// timestamp. Advisory against the configured latency budget.
	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cryptochart",
		Name:      "ingest_latency_seconds",
		Help:      "Delay between exchange trade time and local receipt.",
		Buckets:   []float64{.01, .025, .05, .1, .2, .3, .5, 1, 2.5, 5},
	})

	// WSConnected reports whether an exchange stream is currently up.
	WSConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cryptochart",
		Name:      "ws_connected",
		Help:      "1 while the exchange websocket is connected.",
	}, []string{"exchange"})

	// AdapterFailures counts adapter streams that terminated after
	// exhausting their reconnect budget.
	AdapterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cryptochart",
		Name:      "adapter_failures_total",
		Help:      "Adapter streams terminated with exhausted retries.",
	}, []string{"exchange"})
)

// StartMetricsServer exposes /metrics on addr in a background goroutine.
func StartMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}

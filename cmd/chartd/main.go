package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"cryptochart/aggregator"
	"cryptochart/bus"
	"cryptochart/config"
	"cryptochart/gateway"
	"cryptochart/infrastructure/logger"
	"cryptochart/market"
	"cryptochart/metrics"
	"cryptochart/statestore"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "configuration file path")
	symbolFlag := flag.String("symbol", "", "override the restored symbol (e.g. BTC/USD)")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus listen address, overrides config")
	statePath := flag.String("state", statestore.DefaultPath(), "persisted UI/runtime state file")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	zlog, err := logger.New(logger.Config{
		Level:   cfg.Logger.Level,
		Outputs: []string{"stdout"},
		Format:  cfg.Logger.Format,
	})
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer zlog.Close()

	store := statestore.Open(*statePath, zlog.Logger)
	state := store.State()
	symbol := state.LastSymbol
	if *symbolFlag != "" {
		symbol = *symbolFlag
	}
	if _, ok := cfg.ExchangeIntegrations[symbol]; !ok {
		zlog.Fatal("symbol has no configured exchanges", zap.String("symbol", symbol))
	}
	store.SetSymbol(symbol)

	if cfg.MetricsAddr != "" {
		metrics.StartMetricsServer(cfg.MetricsAddr)
	}

	rawBus := bus.New[market.PriceUpdate](bus.DefaultQueueSize)
	rawBus.OnDrop(func() { metrics.TicksDropped.WithLabelValues("raw").Inc() })
	pointBus := bus.New[market.AggregatedDataPoint](bus.DefaultQueueSize)
	pointBus.OnDrop(func() { metrics.TicksDropped.WithLabelValues("aggregated").Inc() })

	symAgg, err := aggregator.NewSymbol(symbol, cfg.SupportedTimeframes, rawBus, pointBus, zlog.Logger)
	if err != nil {
		zlog.Fatal("build aggregators failed", zap.Error(err))
	}
	symAgg.Start()

	// Consume finalized points until a real chart frontend attaches.
	pointsDone := make(chan struct{})
	pointsSub := pointBus.Subscribe()
	go func() {
		defer close(pointsDone)
		for p := range pointsSub {
			zlog.Info("data point",
				zap.String("symbol", p.Symbol),
				zap.String("timeframe", p.Timeframe),
				zap.Time("bucket_start", p.BucketStart),
				zap.String("vwap", p.VWAP),
				zap.String("volume", p.CumulativeVolume))
		}
	}()

	mgr := gateway.NewConnectionManager(rawBus, cfg.ExchangeIntegrations, zlog.Logger)
	mgr.SwitchSymbol(symbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A stale or hand-edited state file may restore a timeframe the
	// current config no longer serves.
	timeframe := state.LastTimeframe
	if !cfg.SupportsTimeframe(timeframe) {
		fallback := statestore.DefaultState().LastTimeframe
		if !cfg.SupportsTimeframe(fallback) {
			fallback = cfg.SupportedTimeframes[0]
		}
		zlog.Warn("restored timeframe not in configuration",
			zap.String("restored", timeframe),
			zap.String("fallback", fallback))
		timeframe = fallback
	}
	store.SetTimeframe(timeframe)

	go prefetchHistorical(ctx, zlog.Logger, cfg, symbol, timeframe)

	watcher := config.Watcher{Path: *cfgPath, Cooldown: time.Second}
	go func() {
		err := watcher.Start(ctx, func(next config.AppConfig) {
			zlog.Warn("config file changed on disk, restart to apply",
				zap.Strings("supported_timeframes", next.SupportedTimeframes))
		})
		if err != nil && ctx.Err() == nil {
			zlog.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		zlog.Debug("sd_notify unavailable", zap.Error(err))
	}
	zlog.Info("chartd started",
		zap.String("symbol", symbol),
		zap.Strings("timeframes", cfg.SupportedTimeframes),
		zap.String("metrics_addr", cfg.MetricsAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	zlog.Info("shutting down")

	cancel()
	mgr.StopAll()
	symAgg.Stop()
	pointBus.Unsubscribe(pointsSub)
	close(pointsSub)
	<-pointsDone
}

// prefetchHistorical warms the chart with recent bars for the restored
// timeframe, asking each configured exchange in order until one serves
// the request.
func prefetchHistorical(ctx context.Context, zlog *zap.Logger, cfg config.AppConfig, symbol, timeframe string) {
	for _, exchange := range cfg.ExchangeIntegrations[symbol] {
		build, ok := gateway.Registry[exchange]
		if !ok {
			continue
		}
		adapter := build(symbol, zlog)
		candles, err := adapter.FetchHistorical(ctx, timeframe, cfg.HistoricalDataLimit)
		if err != nil {
			zlog.Warn("historical prefetch failed",
				zap.String("exchange", exchange),
				zap.String("timeframe", timeframe),
				zap.Error(err))
			continue
		}
		if len(candles) == 0 {
			continue
		}
		zlog.Info("historical prefetch complete",
			zap.String("exchange", exchange),
			zap.String("timeframe", timeframe),
			zap.Int("candles", len(candles)),
			zap.String("first_open_time", candles[0].OpenTime.Format(time.RFC3339)),
			zap.String("last_close", candles[len(candles)-1].Close))
		return
	}
	zlog.Warn("no exchange served historical data",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe))
}

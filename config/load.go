// Package config loads the static process configuration: supported
// timeframes, the symbol-to-exchange integration map and the advisory
// instrumentation budgets. The core pipeline treats it as immutable
// after startup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"cryptochart/market"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	SupportedTimeframes  []string            `yaml:"supported_timeframes"`
	ExchangeIntegrations map[string][]string `yaml:"exchange_integrations"`
	LatencyBudgetMs      int                 `yaml:"latency_budget_ms"`
	HistoricalDataLimit  int                 `yaml:"historical_data_limit"`
	MetricsAddr          string              `yaml:"metrics_addr"`
	Logger               LoggerConfig        `yaml:"logger"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Default returns the built-in configuration used when no file is
// given. The integration map mirrors which exchanges list each pair.
func Default() AppConfig {
	return AppConfig{
		SupportedTimeframes: []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"},
		ExchangeIntegrations: map[string][]string{
			"BTC/USD":  {"Coinbase Exchange", "Bitstamp", "Kraken"},
			"BTC/EUR":  {"Kraken", "Bitvavo"},
			"BTC/USDT": {"Binance", "OKX", "Bitget"},
		},
		LatencyBudgetMs:     300,
		HistoricalDataLimit: 1000,
		MetricsAddr:         ":9100",
		Logger:              LoggerConfig{Level: "info", Format: "json"},
	}
}

// SupportsTimeframe reports whether label is one of the configured
// timeframes.
func (c AppConfig) SupportsTimeframe(label string) bool {
	for _, tf := range c.SupportedTimeframes {
		if tf == label {
			return true
		}
	}
	return false
}

// Load reads path and overlays it on the defaults. A missing file is
// not an error; the defaults apply.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides applies CHART_* environment overrides on top of
// the file.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("CHART_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CHART_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHART_LATENCY_BUDGET_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.LatencyBudgetMs = ms
		}
	}
	if v := os.Getenv("CHART_HISTORICAL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoricalDataLimit = n
		}
	}
	return cfg, nil
}

// Validate rejects configurations that would fail later at aggregator
// construction: unparseable timeframe labels or symbols with no
// exchange.
func Validate(cfg AppConfig) error {
	if len(cfg.SupportedTimeframes) == 0 {
		return fmt.Errorf("config: no supported timeframes")
	}
	for _, tf := range cfg.SupportedTimeframes {
		if _, err := market.ParseTimeframe(tf); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for symbol, exchanges := range cfg.ExchangeIntegrations {
		if len(exchanges) == 0 {
			return fmt.Errorf("config: symbol %s has no exchanges", symbol)
		}
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
supported_timeframes: ["1m", "1h"]
exchange_integrations:
  BTC/USD: ["Kraken"]
latency_budget_ms: 150
historical_data_limit: 500
metrics_addr: ":9200"
logger:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.SupportedTimeframes) != 2 || cfg.LatencyBudgetMs != 150 {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Logger.Level != "debug" {
		t.Fatalf("logger config not applied: %+v", cfg.Logger)
	}
	if got := cfg.ExchangeIntegrations["BTC/USD"]; len(got) != 1 || got[0] != "Kraken" {
		t.Fatalf("integrations: %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	def := Default()
	if cfg.LatencyBudgetMs != def.LatencyBudgetMs || cfg.HistoricalDataLimit != def.HistoricalDataLimit {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.ExchangeIntegrations["BTC/USDT"]) != 3 {
		t.Fatalf("default integrations missing: %+v", cfg.ExchangeIntegrations)
	}
}

func TestLoadRejectsBadTimeframe(t *testing.T) {
	path := writeTempConfig(t, `
supported_timeframes: ["1m", "bogus"]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bad timeframe label")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
metrics_addr: ":9100"
latency_budget_ms: 300
`)
	t.Setenv("CHART_METRICS_ADDR", ":9999")
	t.Setenv("CHART_LATENCY_BUDGET_MS", "50")
	t.Setenv("CHART_LOG_LEVEL", "warn")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MetricsAddr != ":9999" || cfg.LatencyBudgetMs != 50 || cfg.Logger.Level != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestSupportsTimeframe(t *testing.T) {
	cfg := AppConfig{SupportedTimeframes: []string{"1m", "1h"}}
	if !cfg.SupportsTimeframe("1h") {
		t.Fatal("1h should be supported")
	}
	for _, label := range []string{"1d", "bogus", ""} {
		if cfg.SupportsTimeframe(label) {
			t.Fatalf("%q should not be supported", label)
		}
	}
}

func TestValidateEmptyExchanges(t *testing.T) {
	cfg := Default()
	cfg.ExchangeIntegrations["BTC/USD"] = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for symbol with no exchanges")
	}
}

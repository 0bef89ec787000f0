package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("latency_budget_ms: 300\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan AppConfig, 1)
	w := Watcher{Path: path, Cooldown: time.Millisecond}
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx, func(cfg AppConfig) {
			select {
			case changed <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to arm before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("latency_budget_ms: 42\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.LatencyBudgetMs != 42 {
			t.Fatalf("callback saw stale config: %+v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the change")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

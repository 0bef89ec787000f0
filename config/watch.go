package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports configuration-file changes. The pipeline itself
// treats config as static; the callback is advisory (log, count,
// prompt an operator restart).
type Watcher struct {
	Path     string
	Cooldown time.Duration // minimum gap between callbacks
}

// Start blocks until ctx ends, invoking onChange with the freshly
// loaded config each time the file is written or replaced. Editors
// that rename-over the file re-arm the watch.
func (w Watcher) Start(ctx context.Context, onChange func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = time.Second
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.Path); err != nil {
		return err
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Rename != 0 {
				// Re-add after rename-over saves.
				_ = watcher.Add(w.Path)
			}
			if time.Since(last) < w.Cooldown {
				continue
			}
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				continue
			}
			last = time.Now()
			if onChange != nil {
				onChange(cfg)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

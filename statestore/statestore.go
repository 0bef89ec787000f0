// Package statestore persists the user's last selection across runs.
// Corrupt or missing storage silently falls back to the built-in
// defaults; startup never fails on state.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// State is the persisted application state.
type State struct {
	LastSymbol    string `json:"last_symbol"`
	LastTimeframe string `json:"last_timeframe"`
}

// DefaultState is used whenever the stored state is unreadable.
func DefaultState() State {
	return State{LastSymbol: "BTC/USD", LastTimeframe: "1h"}
}

// Store reads and writes one JSON state file. Saves are best-effort:
// failures are logged, never propagated.
type Store struct {
	path  string
	log   *zap.Logger
	mu    sync.Mutex
	state State
}

// Open loads the state at path, or the defaults when the file is
// missing, unreadable or malformed.
func Open(path string, log *zap.Logger) *Store {
	s := &Store{path: path, log: log, state: DefaultState()}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return s
	}
	if loaded.LastSymbol != "" {
		s.state.LastSymbol = loaded.LastSymbol
	}
	if loaded.LastTimeframe != "" {
		s.state.LastTimeframe = loaded.LastTimeframe
	}
	return s
}

// DefaultPath returns the state file location under the user's home
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".cryptochart", "app_state.json")
	}
	return filepath.Join(home, ".cryptochart", "app_state.json")
}

// State returns the current state snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSymbol records a symbol selection and saves.
func (s *Store) SetSymbol(symbol string) {
	s.mu.Lock()
	s.state.LastSymbol = symbol
	s.saveLocked()
	s.mu.Unlock()
}

// SetTimeframe records a timeframe selection and saves.
func (s *Store) SetTimeframe(timeframe string) {
	s.mu.Lock()
	s.state.LastTimeframe = timeframe
	s.saveLocked()
	s.mu.Unlock()
}

func (s *Store) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Warn("state dir create failed", zap.Error(err))
		return
	}
	data, err := json.Marshal(s.state)
	if err != nil {
		s.log.Warn("state marshal failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.Warn("state save failed", zap.Error(err))
	}
}

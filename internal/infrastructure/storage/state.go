package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/vitos/trade_engine/internal/domain"
)

// StateFile persists the last-executed setup signature as a single small
// JSON record, overwritten atomically. A missing or corrupt file reads as
// "no prior trade".
type StateFile struct {
	path string
	mu   sync.Mutex
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (s *StateFile) Load() (domain.TradeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state domain.TradeState
	data, err := os.ReadFile(s.path)
	if err != nil {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.TradeState{}, nil
	}
	return state, nil
}

func (s *StateFile) Store(state domain.TradeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-write never leaves a torn record.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && filepath.Dir(s.path) != "." {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

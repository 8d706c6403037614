package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"walkforward/internal/core"
	apperrors "walkforward/pkg/errors"
)

// JSONStore keeps symbol records in a single indented JSON document, the
// format of trade_state.json.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load returns an empty map when the file does not exist yet.
func (s *JSONStore) Load(_ context.Context) (map[string]core.SymbolState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]core.SymbolState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	states := map[string]core.SymbolState{}
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrStateCorrupt, s.path, err)
	}
	return states, nil
}

// Save replaces the file atomically via a temp file and rename.
func (s *JSONStore) Save(_ context.Context, states map[string]core.SymbolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(states, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

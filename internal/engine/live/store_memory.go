package live

import (
	"context"
	"sync"

	"walkforward/internal/core"
)

// MemoryStore keeps symbol records in process memory
type MemoryStore struct {
	states map[string]core.SymbolState
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, states map[string]core.SymbolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = copyStates(states)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (map[string]core.SymbolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyStates(s.states), nil
}

func copyStates(in map[string]core.SymbolState) map[string]core.SymbolState {
	out := make(map[string]core.SymbolState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

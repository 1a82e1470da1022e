package sentiment

import (
	"context"
	"sync"
)

// MemoryStore is a simple in-memory store useful for tests.
// It is not intended for production use.

type MemoryStore struct {
	mu       sync.Mutex
	analyses []Analysis
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Create(ctx context.Context, a Analysis) error {
	if a.ID == "" || a.CallID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, a)
	return nil
}

func (m *MemoryStore) ListByCallIDs(ctx context.Context, callIDs []string) ([]Analysis, error) {
	if len(callIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(callIDs))
	for _, id := range callIDs {
		wanted[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Analysis
	for _, a := range m.analyses {
		if wanted[a.CallID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// All returns every stored analysis in insertion order.
func (m *MemoryStore) All() []Analysis {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Analysis, len(m.analyses))
	copy(out, m.analyses)
	return out
}

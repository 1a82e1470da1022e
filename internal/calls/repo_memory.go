package calls

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a simple in-memory store useful for tests.
// It is not intended for production use.

type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]Call)}
}

func (m *MemoryStore) FindByCallID(ctx context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) Create(ctx context.Context, c Call) (Call, bool, error) {
	if c.CallID == "" {
		return Call{}, false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.calls[c.CallID]; ok {
		return existing, false, nil
	}
	m.calls[c.CallID] = c
	return c, true, nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter) ([]Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if matchesFilter(c, f) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && uint64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesFilter(c Call, f ListFilter) bool {
	if f.OrgID != "" && c.OrgID != f.OrgID {
		return false
	}
	if !f.From.IsZero() && c.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !c.StartedAt.Before(f.To) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if c.Status == s {
			return true
		}
	}
	return false
}

package poller

import "sync"

// Default bounds for the processed-identifier set.
const (
	DefaultCacheMax  = 1000
	DefaultCacheKeep = 500
)

// ProcessedSet remembers which call identifiers were already handled during
// this process's lifetime. Membership is bounded: once it exceeds max, only
// the keep most recently inserted identifiers survive. The set is not
// persisted; after a restart the transcript_fetched_at column on the call
// record takes over as the dedup guard.
type ProcessedSet struct {
	mu      sync.Mutex
	max     int
	keep    int
	members map[string]bool
	order   []string
}

func NewProcessedSet(max, keep int) *ProcessedSet {
	if max <= 0 {
		max = DefaultCacheMax
	}
	if keep <= 0 || keep >= max {
		keep = max / 2
	}
	return &ProcessedSet{
		max:     max,
		keep:    keep,
		members: make(map[string]bool),
	}
}

// Add inserts id, evicting the oldest entries when the bound is exceeded.
// Re-adding a present id keeps its original insertion position.
func (p *ProcessedSet) Add(id string) {
	if id == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[id] {
		return
	}
	p.members[id] = true
	p.order = append(p.order, id)
	if len(p.order) <= p.max {
		return
	}
	cut := len(p.order) - p.keep
	for _, old := range p.order[:cut] {
		delete(p.members, old)
	}
	p.order = append([]string(nil), p.order[cut:]...)
}

func (p *ProcessedSet) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.members[id]
}

func (p *ProcessedSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Clear empties the set entirely. Operational reset only; the size bound
// already handles routine eviction.
func (p *ProcessedSet) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = make(map[string]bool)
	p.order = nil
}

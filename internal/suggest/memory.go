// Package suggest remembers values the user has accepted per form field and
// offers prefix suggestions for autocomplete. One bounded LRU per field keeps
// the memory from growing with session length.
package suggest

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCapacity = 128

// Memory is the per-field suggestion store. Constructed once at startup and
// injected wherever suggestions are served.
type Memory struct {
	mu       sync.Mutex
	capacity int
	fields   map[string]*lru.Cache[string, struct{}]
}

// NewMemory creates a store holding up to capacity values per field.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Memory{
		capacity: capacity,
		fields:   map[string]*lru.Cache[string, struct{}]{},
	}
}

// Record remembers an accepted value for a field. Re-recording an existing
// value refreshes its recency.
func (m *Memory) Record(field, value string) {
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cache, ok := m.fields[field]
	if !ok {
		cache, _ = lru.New[string, struct{}](m.capacity)
		m.fields[field] = cache
	}
	cache.Add(value, struct{}{})
}

// Suggest returns up to limit remembered values for the field matching the
// prefix (case-insensitive), most recently used first. An empty prefix
// matches everything.
func (m *Memory) Suggest(field, prefix string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	prefixLower := strings.ToLower(strings.TrimSpace(prefix))

	m.mu.Lock()
	cache, ok := m.fields[field]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	keys := cache.Keys() // oldest to newest
	m.mu.Unlock()

	var out []string
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		if prefixLower == "" || strings.HasPrefix(strings.ToLower(keys[i]), prefixLower) {
			out = append(out, keys[i])
		}
	}
	return out
}

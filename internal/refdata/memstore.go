package refdata

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the cached payload and cooldown expiry in memory. Used
// when the service runs without a database, and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	payload   []byte
	fetchedAt time.Time
	cooldown  time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadIndex(ctx context.Context) ([]byte, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, time.Time{}, ErrNoCache
	}
	return m.payload, m.fetchedAt, nil
}

func (m *MemoryStore) SaveIndex(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = append([]byte(nil), payload...)
	m.fetchedAt = time.Now()
	return nil
}

func (m *MemoryStore) CooldownUntil(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldown, nil
}

func (m *MemoryStore) SetCooldownUntil(ctx context.Context, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldown = until
	return nil
}

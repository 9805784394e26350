package repository

import (
	"context"
	"sync"

	"diary-sync-server/internal/domain"
)

// MemoryStore keeps entries and the counter in process memory. It is only
// suitable for a single server instance.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]domain.DiaryEntry
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]domain.DiaryEntry),
	}
}

func (m *MemoryStore) List(ctx context.Context) ([]*domain.DiaryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*domain.DiaryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		e := e
		entries = append(entries, &e)
	}
	return entries, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, entry *domain.DiaryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Day] = *entry
	return nil
}

func (m *MemoryStore) Get(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.version, nil
}

func (m *MemoryStore) Increment(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	return m.version, nil
}

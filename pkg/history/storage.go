package history

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Storage persists history entries in batches.
// StoreBatch must be atomic: either all entries are stored or none.
type Storage interface {
	StoreBatch(ctx context.Context, entries []Entry) error
	List(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)
}

// MemoryStorage keeps entries in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) StoreBatch(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

// List returns the newest entries of userID first.
func (m *MemoryStorage) List(_ context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range slices.Backward(m.entries) {
		if e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

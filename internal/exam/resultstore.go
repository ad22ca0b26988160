package exam

import (
	"context"
	"errors"
	"sync"
)

var ErrResultNotFound = errors.New("result not found")

// ResultStore is the injected persistence boundary for submitted result
// summaries, keyed the way the results view looks them up
// (toeic_result_{examID}, scoped per user). It is the server-side stand-in
// for a session-storage fallback: if the in-memory navigation payload is
// lost on a refresh, the results view reads the copy stored here.
// Implementations live outside this package; the durable one is
// internal/resultstore.
type ResultStore interface {
	Put(ctx context.Context, userID int64, key string, summary ResultSummary) error
	Get(ctx context.Context, userID int64, key string) (ResultSummary, error)
	Delete(ctx context.Context, userID int64, key string) error
}

type memoryKey struct {
	userID int64
	key    string
}

// MemoryStore keeps summaries in process memory. Used in tests and as the
// default when no durable store is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[memoryKey]ResultSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[memoryKey]ResultSummary)}
}

func (m *MemoryStore) Put(_ context.Context, userID int64, key string, summary ResultSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[memoryKey{userID, key}] = summary
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID int64, key string) (ResultSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[memoryKey{userID, key}]
	if !ok {
		return ResultSummary{}, ErrResultNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, memoryKey{userID, key})
	return nil
}

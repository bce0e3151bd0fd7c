package persistence

import (
	"context"
	"sync"

	"github.com/aegisframework/aegis/types"
)

// MemoryStore implements RegistryStore and SessionStore in process memory.
// It is the default backend and the reference semantics for the others.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*types.ResourceRecord
	sessions map[string]*types.Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*types.ResourceRecord),
		sessions: make(map[string]*types.Session),
	}
}

func (m *MemoryStore) SaveRecord(ctx context.Context, rec *types.ResourceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "store is closed")
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) LoadRecords(ctx context.Context) ([]*types.ResourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.NewError(types.ErrStoreClosed, "store is closed")
	}
	out := make([]*types.ResourceRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *MemoryStore) DeleteRecord(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "store is closed")
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, sess *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "store is closed")
	}
	m.sessions[sess.ID] = sess.Snapshot()
	return nil
}

func (m *MemoryStore) LoadSession(ctx context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.NewError(types.ErrStoreClosed, "store is closed")
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "session not found")
	}
	return sess.Snapshot(), nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.NewError(types.ErrStoreClosed, "store is closed")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

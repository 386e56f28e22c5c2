package dialogue

import (
	"context"
	"sync"
)

// SessionStore maps a session key to dialogue state. Implementations do not
// serialize concurrent turns on one key: updates are last-write-wins, which
// is accepted for human-paced chat traffic.
type SessionStore interface {
	Get(ctx context.Context, key string) (State, bool, error)
	Set(ctx context.Context, key string, state State) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-wide in-memory session store. Sessions live for
// the process lifetime; there is no eviction, and continuity depends on the
// same process serving every turn. Use the Redis store for anything beyond a
// single instance.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]State)}
}

var _ SessionStore = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[key]
	return state, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = state
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore is a process-local session storage with the same idle-expiry
// semantics as RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	idle    time.Duration
	now     func() time.Time
}

func NewMemoryStore(idle time.Duration) *MemoryStore {
	if idle < minIdleTimeout {
		idle = minIdleTimeout
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		idle:    idle,
		now:     time.Now,
	}
}

// WithClock replaces the time source; intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return State{}, nil
	}
	now := s.now()
	if !now.Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return State{}, nil
	}
	entry.expiresAt = now.Add(s.idle)
	s.entries[sessionID] = entry
	return entry.state, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, state State) error {
	if sessionID == "" {
		return errors.New("session id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state.IsZero() {
		delete(s.entries, sessionID)
		return nil
	}
	s.entries[sessionID] = memoryEntry{state: state, expiresAt: s.now().Add(s.idle)}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

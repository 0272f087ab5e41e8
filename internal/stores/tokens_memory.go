package stores

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// MemoryTokenStore keeps token records in process memory. One mutex covers
// every replace and consume, which is what makes both operations atomic.
type MemoryTokenStore struct {
	mu      sync.Mutex
	records map[string]*TokenRecord
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{records: make(map[string]*TokenRecord)}
}

func memoryTokenKey(purpose, accountID string) string {
	return purpose + "\x00" + accountID
}

func (s *MemoryTokenStore) Replace(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	createdAt, expiresAt time.Time,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !expiresAt.After(createdAt) {
		return ErrTokenWindowInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[memoryTokenKey(purpose, accountID)] = &TokenRecord{
		Digest:    digest,
		CreatedAt: createdAt.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	}
	s.pruneLocked(createdAt)

	return nil
}

func (s *MemoryTokenStore) Consume(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	now time.Time,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[memoryTokenKey(purpose, accountID)]
	if !ok || !record.Live(now) {
		return false, nil
	}
	if subtle.ConstantTimeCompare(record.Digest[:], digest[:]) != 1 {
		return false, nil
	}

	record.Consumed = true
	return true, nil
}

func (s *MemoryTokenStore) Get(_ context.Context, accountID, purpose string) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[memoryTokenKey(purpose, accountID)]
	if !ok {
		return nil, nil
	}
	out := *record
	return &out, nil
}

// Len returns the number of retained records, expired ones included until the
// next prune.
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryTokenStore) pruneLocked(now time.Time) {
	cutoff := now.UnixMilli()
	for key, record := range s.records {
		if record.ExpiresAt <= cutoff {
			delete(s.records, key)
		}
	}
}

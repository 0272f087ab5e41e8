package otpauth

import (
	"context"
	"sync"
)

// MemoryAccountStore is an AccountStore kept in process memory. Uniqueness is
// enforced inside one critical section, so concurrent duplicate registrations
// resolve to a single winner.
type MemoryAccountStore struct {
	mu         sync.RWMutex
	byID       map[string]Account
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:       make(map[string]Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *MemoryAccountStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if account.ID == "" || account.Username == "" || account.Email == "" {
		return Account{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[account.ID]; ok {
		return Account{}, ErrDuplicateIdentity
	}
	if _, ok := s.byUsername[account.Username]; ok {
		return Account{}, ErrDuplicateIdentity
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return Account{}, ErrDuplicateIdentity
	}

	s.byID[account.ID] = account
	s.byUsername[account.Username] = account.ID
	s.byEmail[account.Email] = account.ID

	return account, nil
}

func (s *MemoryAccountStore) GetByID(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *MemoryAccountStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	return s.lookup(ctx, s.byUsername, username)
}

func (s *MemoryAccountStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.lookup(ctx, s.byEmail, email)
}

func (s *MemoryAccountStore) lookup(ctx context.Context, index map[string]string, key string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryAccountStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	s.byID[id] = account
	return nil
}

// Len returns the number of stored accounts.
func (s *MemoryAccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

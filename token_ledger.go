package otpauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpauth/internal"
)

// Ledger issues and redeems single-use numeric codes. It owns code
// generation, TTL selection and digesting; the TokenStore owns atomicity.
//
// Ledger is safe for concurrent use when its TokenStore is.
type Ledger struct {
	store TokenStore
	cfg   TokenConfig
	now   func() time.Time
}

// NewLedger returns a Ledger over store. A nil now uses time.Now.
func NewLedger(store TokenStore, cfg TokenConfig, now func() time.Time) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("token store required")
	}
	if cfg.CodeDigits < internal.MinCodeDigits || cfg.CodeDigits > internal.MaxCodeDigits {
		return nil, errors.New("Tokens CodeDigits must be between 4 and 10")
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, cfg: cfg, now: now}, nil
}

// Issue generates a fresh code for (accountID, purpose) and stores it,
// superseding any code issued earlier for the same pair. The returned Code
// is the only plaintext copy.
func (l *Ledger) Issue(ctx context.Context, accountID string, purpose Purpose) (IssuedToken, error) {
	if l == nil {
		return IssuedToken{}, ErrEngineNotReady
	}
	if accountID == "" || !purpose.Valid() {
		return IssuedToken{}, ErrInvalidInput
	}

	ttl := l.cfg.TTL(purpose)
	if ttl <= 0 {
		return IssuedToken{}, ErrInvalidInput
	}

	code, err := internal.NewNumericCode(l.cfg.CodeDigits)
	if err != nil {
		return IssuedToken{}, err
	}

	createdAt := l.now()
	expiresAt := createdAt.Add(ttl)
	digest := internal.CodeDigest(string(purpose), accountID, code)

	if err := l.store.Replace(ctx, accountID, string(purpose), digest, createdAt, expiresAt); err != nil {
		return IssuedToken{}, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}

	return IssuedToken{
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		TTL:       ttl,
	}, nil
}

// Redeem consumes the live code for (accountID, purpose) when code matches.
// A wrong, expired, superseded or already used code is (false, nil); only a
// storage failure returns an error.
func (l *Ledger) Redeem(ctx context.Context, accountID string, purpose Purpose, code string) (bool, error) {
	if l == nil {
		return false, ErrEngineNotReady
	}
	if accountID == "" || !purpose.Valid() {
		return false, nil
	}
	if !internal.IsNumericCode(code, l.cfg.CodeDigits) {
		return false, nil
	}

	digest := internal.CodeDigest(string(purpose), accountID, code)
	ok, err := l.store.Consume(ctx, accountID, string(purpose), digest, l.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	return ok, nil
}

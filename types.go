package otpauth

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/session"
)

// Purpose scopes a token's TTL and its invalidation rule.
type Purpose string

const (
	PurposeLoginOTP      Purpose = "login-otp"
	PurposePasswordReset Purpose = "password-reset"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	return p == PurposeLoginOTP || p == PurposePasswordReset
}

// Account is a registered identity. PasswordHash is an argon2id PHC string.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountStore is the Credential Store's persistence contract.
//
// CreateAccount must be insert-or-fail: a concurrent duplicate on username or
// email yields ErrDuplicateIdentity for all but one caller. Lookups return
// ErrAccountNotFound for unknown keys. Any other error is a storage fault.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// TokenStore persists token records keyed by (accountID, purpose).
//
// Replace must drop any earlier record for the pair and insert the new one as
// one atomic step. Consume must check digest, consumed flag and expiry against
// now and flip the consumed flag in one atomic step, returning true to exactly
// one caller. Neither reports "not found" as an error.
type TokenStore interface {
	Replace(ctx context.Context, accountID, purpose string, digest [32]byte, createdAt, expiresAt time.Time) error
	Consume(ctx context.Context, accountID, purpose string, digest [32]byte, now time.Time) (bool, error)
}

// SessionStorage holds per-caller session state. Get on an unknown ID returns
// the zero State.
type SessionStorage interface {
	Get(ctx context.Context, sessionID string) (session.State, error)
	Put(ctx context.Context, sessionID string, state session.State) error
	Clear(ctx context.Context, sessionID string) error
}

// DeliveryStatus is the coarse result of a notification attempt.
type DeliveryStatus uint8

const (
	DeliverySent DeliveryStatus = iota + 1
	DeliverySimulated
	DeliveryFailed
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliverySent:
		return "sent"
	case DeliverySimulated:
		return "simulated"
	case DeliveryFailed:
		return "failed"
	default:
		return "none"
	}
}

// Delivery is one code handed to a Notifier.
type Delivery struct {
	To      string
	Purpose Purpose
	Code    string
	TTL     time.Duration
}

// TTLMinutes rounds the TTL up to whole minutes for message bodies.
func (d Delivery) TTLMinutes() int {
	m := int(d.TTL / time.Minute)
	if d.TTL%time.Minute != 0 {
		m++
	}
	return m
}

// DeliveryOutcome never aborts an operation; it is reported alongside the result.
type DeliveryOutcome struct {
	Status DeliveryStatus
	Reason string
}

func Sent() DeliveryOutcome      { return DeliveryOutcome{Status: DeliverySent} }
func Simulated() DeliveryOutcome { return DeliveryOutcome{Status: DeliverySimulated} }

func Failed(reason string) DeliveryOutcome {
	return DeliveryOutcome{Status: DeliveryFailed, Reason: reason}
}

// Notifier is the Notification Gateway. Implementations must not panic and
// must report transport problems through the outcome.
type Notifier interface {
	Deliver(ctx context.Context, d Delivery) DeliveryOutcome
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, d Delivery) DeliveryOutcome

func (f NotifierFunc) Deliver(ctx context.Context, d Delivery) DeliveryOutcome {
	return f(ctx, d)
}

// IssuedToken is returned by Ledger.Issue. Code is the only copy of the
// plaintext; stores keep a digest.
type IssuedToken struct {
	Code      string
	Purpose   Purpose
	ExpiresAt time.Time
	TTL       time.Duration
}

// LoginResult reports the login track after a login operation.
type LoginResult struct {
	AccountID string
	Phase     session.LoginPhase
	ExpiresAt time.Time
	Delivery  DeliveryOutcome
}

// RecoveryResult reports the recovery track after a recovery operation.
//
// Accepted is false when BeginRecovery found no account and the engine is
// configured for uniform responses; callers should show the same message
// either way.
type RecoveryResult struct {
	Accepted  bool
	Phase     session.RecoveryPhase
	ExpiresAt time.Time
	Delivery  DeliveryOutcome
}

// Profile is the non-secret view of an account returned to authenticated callers.
type Profile struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

func profileOf(a Account) Profile {
	return Profile{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

package otpauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otpauth/password"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Register creates an account. Username, email and password must be
// non-empty after trimming; the password itself is hashed untrimmed.
//
// Uniqueness is decided by the AccountStore in one insert-or-fail step, so of
// two concurrent registrations naming the same username or email exactly one
// succeeds and the other gets ErrDuplicateIdentity.
func (e *Engine) Register(ctx context.Context, username, email, pw string) (Account, error) {
	if e == nil || e.accounts == nil {
		return Account{}, ErrEngineNotReady
	}

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || strings.TrimSpace(pw) == "" {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInvalidInput, nil)
		return Account{}, ErrInvalidInput
	}

	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return Account{}, ErrInvalidInput
		}
		return Account{}, err
	}

	account, err := e.accounts.CreateAccount(ctx, Account{
		ID:           ksuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    e.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
				return map[string]string{"username": username}
			})
			return Account{}, ErrDuplicateIdentity
		}
		return Account{}, e.storageFault("create account", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, "", nil, nil)

	return account, nil
}

// VerifyCredentials resolves identifier per Config.Login.IdentifierPolicy and
// checks password against the stored hash. Every failure, unknown identifier
// included, is ErrInvalidCredentials.
func (e *Engine) VerifyCredentials(ctx context.Context, identifier, pw string) (Account, error) {
	if e == nil || e.accounts == nil {
		return Account{}, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricCredentialVerifyLatency, time.Since(start))
		}
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || pw == "" {
		return Account{}, ErrInvalidCredentials
	}

	account, found, err := e.resolveIdentifier(ctx, identifier)
	if err != nil {
		return Account{}, err
	}

	if !found {
		// Equalize timing with the found path.
		_, _ = e.passwordHash.Verify(pw, e.dummyHash)
		return Account{}, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pw, account.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrMalformedHash) {
			e.logger.Error("stored password hash is malformed", zap.String("account_id", account.ID))
		}
		return Account{}, ErrInvalidCredentials
	}
	if !ok {
		return Account{}, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.upgradePasswordHash(ctx, account, pw)
	}

	return account, nil
}

// upgradePasswordHash is best-effort; a failure never fails the login.
func (e *Engine) upgradePasswordHash(ctx context.Context, account Account, pw string) {
	stale, err := e.passwordHash.NeedsUpgrade(account.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		e.logger.Warn("password hash upgrade failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		e.logger.Warn("password hash upgrade not stored", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	e.logger.Info("password hash upgraded", zap.String("account_id", account.ID))
}

func (e *Engine) resolveIdentifier(ctx context.Context, identifier string) (Account, bool, error) {
	account, err := e.accounts.GetByUsername(ctx, identifier)
	switch {
	case err == nil:
		return account, true, nil
	case !errors.Is(err, ErrAccountNotFound):
		return Account{}, false, e.storageFault("get account by username", err)
	}

	if e.config.Login.IdentifierPolicy == IdentifierUsernameOnly {
		return Account{}, false, nil
	}

	account, err = e.accounts.GetByEmail(ctx, identifier)
	switch {
	case err == nil:
		return account, true, nil
	case errors.Is(err, ErrAccountNotFound):
		return Account{}, false, nil
	default:
		return Account{}, false, e.storageFault("get account by email", err)
	}
}

// UpdatePassword re-hashes newPassword and overwrites the stored hash. No
// policy is applied here; CompleteRecovery enforces the recovery minimum.
func (e *Engine) UpdatePassword(ctx context.Context, accountID, newPassword string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || newPassword == "" {
		return ErrInvalidInput
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return ErrPasswordPolicy
		}
		return err
	}

	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return e.storageFault("update password", err, zap.String("account_id", accountID))
	}

	e.emitAudit(ctx, auditEventPasswordUpdated, true, accountID, "", nil, nil)
	return nil
}

// LookupByEmail returns the account registered with email. The bool is false
// when there is none.
func (e *Engine) LookupByEmail(ctx context.Context, email string) (Account, bool, error) {
	if e == nil || e.accounts == nil {
		return Account{}, false, ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return Account{}, false, nil
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return account, true, nil
	case errors.Is(err, ErrAccountNotFound):
		return Account{}, false, nil
	default:
		return Account{}, false, e.storageFault("get account by email", err)
	}
}

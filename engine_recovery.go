package otpauth

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/MrEthical07/otpauth/session"
	"go.uber.org/zap"
)

// BeginRecovery starts password recovery for the account registered with
// email. It does not depend on login progress.
//
// When no account matches, the recovery track is left as it was. With
// Config.Recovery.UniformResponse the call then succeeds with Accepted false,
// so callers can show one message for both cases; otherwise it returns
// ErrAccountNotFound.
func (e *Engine) BeginRecovery(ctx context.Context, sessionID, email string) (RecoveryResult, error) {
	if e == nil || e.sessions == nil || e.ledger == nil {
		return RecoveryResult{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return RecoveryResult{}, ErrInvalidInput
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return RecoveryResult{}, err
	}

	e.metricInc(MetricRecoveryRequest)

	account, found, err := e.LookupByEmail(ctx, email)
	if err != nil {
		return recoveryResultOf(state), err
	}
	if !found {
		e.metricInc(MetricRecoveryUnknownIdentity)
		e.emitAudit(ctx, auditEventRecoveryRequest, false, "", sessionID, ErrAccountNotFound, nil)
		if e.config.Recovery.UniformResponse {
			return recoveryResultOf(state), nil
		}
		return recoveryResultOf(state), ErrAccountNotFound
	}

	token, err := e.ledger.Issue(ctx, account.ID, PurposePasswordReset)
	if err != nil {
		return recoveryResultOf(state), e.storageFault("issue reset code", err,
			zap.String("account_id", account.ID), zap.String("purpose", string(PurposePasswordReset)))
	}
	e.metricInc(MetricTokenIssued)

	next, err := state.BeginRecovery(account.ID, account.Email)
	if err != nil {
		return recoveryResultOf(state), err
	}
	if err := e.saveSession(ctx, sessionID, next); err != nil {
		return recoveryResultOf(state), err
	}

	e.emitAudit(ctx, auditEventRecoveryRequest, true, account.ID, sessionID, nil, nil)

	result := recoveryResultOf(next)
	result.Accepted = true
	result.ExpiresAt = token.ExpiresAt
	result.Delivery = e.deliver(ctx, account.ID, account.Email, token)
	return result, nil
}

// ConfirmRecoveryCode redeems a reset code for the account named by
// BeginRecovery. Failures keep the track in IdentityConfirmed.
func (e *Engine) ConfirmRecoveryCode(ctx context.Context, sessionID, code string) (RecoveryResult, error) {
	if e == nil || e.sessions == nil || e.ledger == nil {
		return RecoveryResult{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return RecoveryResult{}, e.flowOutOfOrder(ctx, sessionID, "recovery code")
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return RecoveryResult{}, err
	}

	if state.CanReplacePassword() {
		e.metricInc(MetricRecoveryCodeFailure)
		e.emitAudit(ctx, auditEventRecoveryCode, false, state.Recovery.AccountID, sessionID, ErrInvalidOrExpiredToken, nil)
		return recoveryResultOf(state), ErrInvalidOrExpiredToken
	}
	if !state.AwaitingRecoveryCode() {
		return recoveryResultOf(state), e.flowOutOfOrder(ctx, sessionID, "recovery code")
	}

	accountID := state.Recovery.AccountID
	ok, err := e.ledger.Redeem(ctx, accountID, PurposePasswordReset, code)
	if err != nil {
		return recoveryResultOf(state), e.storageFault("redeem reset code", err,
			zap.String("account_id", accountID), zap.String("purpose", string(PurposePasswordReset)))
	}
	if !ok {
		e.metricInc(MetricTokenRejected)
		e.metricInc(MetricRecoveryCodeFailure)
		e.emitAudit(ctx, auditEventRecoveryCode, false, accountID, sessionID, ErrInvalidOrExpiredToken, nil)
		return recoveryResultOf(state), ErrInvalidOrExpiredToken
	}
	e.metricInc(MetricTokenRedeemed)

	next, err := state.ConfirmRecovery()
	if err != nil {
		return recoveryResultOf(state), err
	}
	if err := e.saveSession(ctx, sessionID, next); err != nil {
		return recoveryResultOf(state), err
	}

	e.metricInc(MetricRecoveryCodeSuccess)
	e.emitAudit(ctx, auditEventRecoveryCode, true, accountID, sessionID, nil, nil)

	return recoveryResultOf(next), nil
}

// ResendRecoveryCode reissues the reset code to the recorded destination,
// invalidating the previous one.
func (e *Engine) ResendRecoveryCode(ctx context.Context, sessionID string) (RecoveryResult, error) {
	if e == nil || e.sessions == nil || e.ledger == nil {
		return RecoveryResult{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return RecoveryResult{}, e.flowOutOfOrder(ctx, sessionID, "recovery resend")
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return RecoveryResult{}, err
	}
	if !state.AwaitingRecoveryCode() {
		return recoveryResultOf(state), e.flowOutOfOrder(ctx, sessionID, "recovery resend")
	}

	accountID := state.Recovery.AccountID
	token, err := e.ledger.Issue(ctx, accountID, PurposePasswordReset)
	if err != nil {
		return recoveryResultOf(state), e.storageFault("reissue reset code", err,
			zap.String("account_id", accountID), zap.String("purpose", string(PurposePasswordReset)))
	}
	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricRecoveryCodeResent)
	e.emitAudit(ctx, auditEventRecoveryCodeResent, true, accountID, sessionID, nil, nil)

	result := recoveryResultOf(state)
	result.ExpiresAt = token.ExpiresAt
	result.Delivery = e.deliver(ctx, accountID, state.Recovery.Destination, token)
	return result, nil
}

// CompleteRecovery replaces the password once the reset code was redeemed.
// newPassword and confirm must match and be at least
// Config.Recovery.MinPasswordLength characters. On success the recovery track
// is cleared; the login track is untouched.
func (e *Engine) CompleteRecovery(ctx context.Context, sessionID, newPassword, confirm string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return e.flowOutOfOrder(ctx, sessionID, "password replace")
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !state.CanReplacePassword() {
		return e.flowOutOfOrder(ctx, sessionID, "password replace")
	}

	accountID := state.Recovery.AccountID
	if newPassword != confirm {
		e.metricInc(MetricRecoveryPasswordRejected)
		e.emitAudit(ctx, auditEventRecoveryComplete, false, accountID, sessionID, ErrPasswordMismatch, nil)
		return ErrPasswordMismatch
	}
	if utf8.RuneCountInString(newPassword) < e.config.Recovery.MinPasswordLength {
		e.metricInc(MetricRecoveryPasswordRejected)
		e.emitAudit(ctx, auditEventRecoveryComplete, false, accountID, sessionID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	if err := e.UpdatePassword(ctx, accountID, newPassword); err != nil {
		if errors.Is(err, ErrPasswordPolicy) {
			e.metricInc(MetricRecoveryPasswordRejected)
		}
		return err
	}

	next, err := state.FinishRecovery()
	if err != nil {
		return err
	}
	if err := e.saveSession(ctx, sessionID, next); err != nil {
		return err
	}

	e.metricInc(MetricRecoveryComplete)
	e.emitAudit(ctx, auditEventRecoveryComplete, true, accountID, sessionID, nil, nil)
	return nil
}

func recoveryResultOf(state session.State) RecoveryResult {
	return RecoveryResult{
		Phase: state.Recovery.Phase,
	}
}

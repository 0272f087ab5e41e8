package otpauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpauth/session"
	"go.uber.org/zap"
)

// BeginLogin checks identifier and password for the caller identified by
// sessionID. On success a login code is issued to the account's email, the
// login track moves to PasswordVerified, and the delivery outcome is
// reported in the result. Failed delivery does not fail the call.
//
// A storage fault leaves the session unchanged.
func (e *Engine) BeginLogin(ctx context.Context, sessionID, identifier, pw string) (LoginResult, error) {
	if e == nil || e.sessions == nil || e.ledger == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return LoginResult{}, ErrInvalidInput
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return LoginResult{}, err
	}

	account, err := e.VerifyCredentials(ctx, identifier, pw)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.metricInc(MetricLoginPasswordFailure)
		}
		e.emitAudit(ctx, auditEventLoginPassword, false, "", sessionID, err, nil)
		return LoginResult{Phase: state.Login.Phase}, err
	}

	token, err := e.ledger.Issue(ctx, account.ID, PurposeLoginOTP)
	if err != nil {
		return LoginResult{Phase: state.Login.Phase}, e.storageFault("issue login code", err,
			zap.String("account_id", account.ID), zap.String("purpose", string(PurposeLoginOTP)))
	}
	e.metricInc(MetricTokenIssued)

	next, err := state.BeginLogin(account.ID, account.Email)
	if err != nil {
		return LoginResult{Phase: state.Login.Phase}, err
	}
	if err := e.saveSession(ctx, sessionID, next); err != nil {
		return LoginResult{Phase: state.Login.Phase}, err
	}

	e.metricInc(MetricLoginPasswordSuccess)
	e.emitAudit(ctx, auditEventLoginPassword, true, account.ID, sessionID, nil, nil)

	outcome := e.deliver(ctx, account.ID, account.Email, token)

	return LoginResult{
		AccountID: account.ID,
		Phase:     next.Login.Phase,
		ExpiresAt: token.ExpiresAt,
		Delivery:  outcome,
	}, nil
}

// ConfirmLoginCode redeems code for the account that passed BeginLogin on
// this session. A wrong, expired, superseded or reused code leaves the
// session in PasswordVerified and returns ErrInvalidOrExpiredToken. A session
// that is already fully authenticated gets the same error and is not changed.
// Without a password step first the call fails with ErrFlowOutOfOrder.
func (e *Engine) ConfirmLoginCode(ctx context.Context, sessionID, code string) (LoginResult, error) {
	if e == nil || e.sessions == nil || e.ledger == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return LoginResult{}, e.flowOutOfOrder(ctx, sessionID, "login code")
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return LoginResult{}, err
	}

	if state.Authenticated() {
		e.metricInc(MetricLoginCodeFailure)
		e.emitAudit(ctx, auditEventLoginCode, false, state.Login.AccountID, sessionID, ErrInvalidOrExpiredToken, nil)
		return loginResultOf(state), ErrInvalidOrExpiredToken
	}
	if !state.AwaitingLoginCode() {
		return loginResultOf(state), e.flowOutOfOrder(ctx, sessionID, "login code")
	}

	accountID := state.Login.AccountID
	ok, err := e.ledger.Redeem(ctx, accountID, PurposeLoginOTP, code)
	if err != nil {
		return loginResultOf(state), e.storageFault("redeem login code", err,
			zap.String("account_id", accountID), zap.String("purpose", string(PurposeLoginOTP)))
	}
	if !ok {
		e.metricInc(MetricTokenRejected)
		e.metricInc(MetricLoginCodeFailure)
		e.emitAudit(ctx, auditEventLoginCode, false, accountID, sessionID, ErrInvalidOrExpiredToken, nil)
		return loginResultOf(state), ErrInvalidOrExpiredToken
	}
	e.metricInc(MetricTokenRedeemed)

	next, err := state.CompleteLogin()
	if err != nil {
		return loginResultOf(state), err
	}
	if err := e.saveSession(ctx, sessionID, next); err != nil {
		return loginResultOf(state), err
	}

	e.metricInc(MetricLoginCodeSuccess)
	e.emitAudit(ctx, auditEventLoginCode, true, accountID, sessionID, nil, nil)

	return loginResultOf(next), nil
}

// ResendLoginCode issues a fresh login code to the destination recorded by
// BeginLogin. The previous code stops working immediately.
func (e *Engine) ResendLoginCode(ctx context.Context, sessionID string) (LoginResult, error) {
	if e == nil || e.sessions == nil || e.ledger == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return LoginResult{}, e.flowOutOfOrder(ctx, sessionID, "login resend")
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return LoginResult{}, err
	}
	if !state.AwaitingLoginCode() {
		return loginResultOf(state), e.flowOutOfOrder(ctx, sessionID, "login resend")
	}

	accountID := state.Login.AccountID
	token, err := e.ledger.Issue(ctx, accountID, PurposeLoginOTP)
	if err != nil {
		return loginResultOf(state), e.storageFault("reissue login code", err,
			zap.String("account_id", accountID), zap.String("purpose", string(PurposeLoginOTP)))
	}
	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricLoginCodeResent)
	e.emitAudit(ctx, auditEventLoginCodeResent, true, accountID, sessionID, nil, nil)

	result := loginResultOf(state)
	result.ExpiresAt = token.ExpiresAt
	result.Delivery = e.deliver(ctx, accountID, state.Login.Destination, token)
	return result, nil
}

// Logout clears both tracks of the session. Clearing an unknown session is
// not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := e.saveSession(ctx, sessionID, state.Logout()); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, state.Login.AccountID, sessionID, nil, nil)
	return nil
}

// RotateSession moves the state held under oldID to newID and clears oldID.
// Callers rotate after a privilege change so an identifier observed before
// login is worthless afterwards.
func (e *Engine) RotateSession(ctx context.Context, oldID, newID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if oldID == "" || newID == "" || oldID == newID {
		return ErrInvalidInput
	}

	state, err := e.loadSession(ctx, oldID)
	if err != nil {
		return err
	}
	if err := e.saveSession(ctx, newID, state); err != nil {
		return err
	}
	if err := e.sessions.Clear(ctx, oldID); err != nil {
		return e.storageFault("session clear", err, zap.String("session", oldID))
	}

	e.metricInc(MetricSessionRotated)
	e.emitAudit(ctx, auditEventSessionRotated, true, state.Login.AccountID, newID, nil, nil)
	return nil
}

// Authorize returns the profile of the fully authenticated account behind
// sessionID, or ErrNotAuthenticated. Callers should redirect to login on
// ErrNotAuthenticated rather than treat it as a failure.
func (e *Engine) Authorize(ctx context.Context, sessionID string) (Profile, error) {
	if e == nil || e.sessions == nil || e.accounts == nil {
		return Profile{}, ErrEngineNotReady
	}
	if sessionID == "" {
		e.metricInc(MetricAccessDenied)
		return Profile{}, ErrNotAuthenticated
	}

	state, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return Profile{}, err
	}
	if !state.Authenticated() {
		e.metricInc(MetricAccessDenied)
		e.emitAudit(ctx, auditEventAccessDenied, false, "", sessionID, ErrNotAuthenticated, nil)
		return Profile{}, ErrNotAuthenticated
	}

	account, err := e.accounts.GetByID(ctx, state.Login.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricAccessDenied)
			return Profile{}, ErrNotAuthenticated
		}
		return Profile{}, e.storageFault("get account by id", err, zap.String("session", sessionID))
	}

	return profileOf(account), nil
}

func (e *Engine) flowOutOfOrder(ctx context.Context, sessionID, step string) error {
	e.metricInc(MetricFlowOutOfOrder)
	e.emitAudit(ctx, auditEventFlowOutOfOrder, false, "", sessionID, ErrFlowOutOfOrder, func() map[string]string {
		return map[string]string{"step": step}
	})
	return ErrFlowOutOfOrder
}

func loginResultOf(state session.State) LoginResult {
	return LoginResult{
		AccountID: state.Login.AccountID,
		Phase:     state.Login.Phase,
	}
}

package session

import (
	"errors"
	"fmt"
)

// ErrTransition is returned for a move the current phase does not allow.
var ErrTransition = errors.New("session transition not allowed")

func transitionError(track string, from fmt.Stringer, event string) error {
	return fmt.Errorf("%w: %s %s on %s", ErrTransition, track, from, event)
}

// BeginLogin records a successful password check. It is legal from every
// login phase: a fresh password check restarts the second step, so an already
// authenticated session drops back to PasswordVerified.
func (s State) BeginLogin(accountID, destination string) (State, error) {
	if accountID == "" {
		return s, transitionError("login", s.Login.Phase, "password verified")
	}
	s.Login = LoginTrack{
		AccountID:   accountID,
		Destination: destination,
		Phase:       LoginPasswordVerified,
	}
	return s, nil
}

// AwaitingLoginCode reports whether a login code may be submitted or resent.
func (s State) AwaitingLoginCode() bool {
	return s.Login.Phase == LoginPasswordVerified && s.Login.AccountID != ""
}

// CompleteLogin records a redeemed login code.
func (s State) CompleteLogin() (State, error) {
	if !s.AwaitingLoginCode() {
		return s, transitionError("login", s.Login.Phase, "code redeemed")
	}
	s.Login.Phase = LoginAuthenticated
	return s, nil
}

// Logout clears both tracks.
func (s State) Logout() State {
	return State{}
}

// BeginRecovery records a successful identity lookup. A repeated lookup
// restarts the track for the newly named account.
func (s State) BeginRecovery(accountID, destination string) (State, error) {
	if accountID == "" {
		return s, transitionError("recovery", s.Recovery.Phase, "identity confirmed")
	}
	s.Recovery = RecoveryTrack{
		AccountID:   accountID,
		Destination: destination,
		Phase:       RecoveryIdentityConfirmed,
	}
	return s, nil
}

func (s State) AwaitingRecoveryCode() bool {
	return s.Recovery.Phase == RecoveryIdentityConfirmed && s.Recovery.AccountID != ""
}

func (s State) ConfirmRecovery() (State, error) {
	if !s.AwaitingRecoveryCode() {
		return s, transitionError("recovery", s.Recovery.Phase, "code redeemed")
	}
	s.Recovery.Phase = RecoveryCodeVerified
	return s, nil
}

// CanReplacePassword reports whether the recovery track reached CodeVerified.
func (s State) CanReplacePassword() bool {
	return s.Recovery.Phase == RecoveryCodeVerified && s.Recovery.AccountID != ""
}

// FinishRecovery ends the recovery track after the password was replaced.
// The login track is left as it was.
func (s State) FinishRecovery() (State, error) {
	if !s.CanReplacePassword() {
		return s, transitionError("recovery", s.Recovery.Phase, "password replaced")
	}
	s.Recovery = RecoveryTrack{}
	return s, nil
}

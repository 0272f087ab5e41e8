package otpauth

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentity is returned when registration names a username or
	// email that already belongs to an account.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrInvalidCredentials covers an unknown identifier and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredToken covers a wrong, expired, superseded or already used code.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired code")
	// ErrStorageFault wraps every persistence failure. Operations that return it
	// leave session state untouched.
	ErrStorageFault = errors.New("storage fault")

	// ErrInvalidInput is returned for empty or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAccountNotFound is returned by stores for unknown accounts.
	ErrAccountNotFound = errors.New("account not found")
	// ErrPasswordPolicy is returned when a new password is shorter than the configured minimum.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordMismatch is returned when the new password and its confirmation differ.
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	// ErrFlowOutOfOrder is returned when a step is attempted before the step it
	// depends on. Callers should send the user back to the start of that flow.
	ErrFlowOutOfOrder = errors.New("flow step out of order")
	// ErrNotAuthenticated is returned by Authorize for sessions that have not
	// completed both login steps.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

func wrapStorageFault(err error) error {
	if err == nil || errors.Is(err, ErrStorageFault) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageFault, err)
}

package session

// LoginPhase is the progress of the two-step login track.
type LoginPhase uint8

const (
	LoginAnonymous LoginPhase = iota
	LoginPasswordVerified
	LoginAuthenticated
)

func (p LoginPhase) String() string {
	switch p {
	case LoginAnonymous:
		return "anonymous"
	case LoginPasswordVerified:
		return "password-verified"
	case LoginAuthenticated:
		return "fully-authenticated"
	default:
		return "unknown"
	}
}

// RecoveryPhase is the progress of the password recovery track. Password
// replacement is terminal and resets the track to RecoveryAnonymous.
type RecoveryPhase uint8

const (
	RecoveryAnonymous RecoveryPhase = iota
	RecoveryIdentityConfirmed
	RecoveryCodeVerified
)

func (p RecoveryPhase) String() string {
	switch p {
	case RecoveryAnonymous:
		return "anonymous"
	case RecoveryIdentityConfirmed:
		return "identity-confirmed"
	case RecoveryCodeVerified:
		return "code-verified"
	default:
		return "unknown"
	}
}

// LoginTrack records which account a login attempt belongs to and where its
// code was sent.
type LoginTrack struct {
	AccountID   string
	Destination string
	Phase       LoginPhase
}

type RecoveryTrack struct {
	AccountID   string
	Destination string
	Phase       RecoveryPhase
}

// State is everything the engine keeps per caller session. The login and
// recovery tracks are independent: recovering a password neither needs nor
// touches login progress.
type State struct {
	Login     LoginTrack
	Recovery  RecoveryTrack
	UpdatedAt int64
}

// IsZero reports whether both tracks are anonymous and empty.
func (s State) IsZero() bool {
	return s.Login == LoginTrack{} && s.Recovery == RecoveryTrack{}
}

// Authenticated reports whether the login track completed both steps.
func (s State) Authenticated() bool {
	return s.Login.Phase == LoginAuthenticated && s.Login.AccountID != ""
}

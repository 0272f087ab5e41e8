package otpauth

import "time"

type SecurityReport struct {
	Argon2                  PasswordConfigReport
	LoginOTPTTL             time.Duration
	PasswordResetTTL        time.Duration
	CodeDigits              int
	CodesHashedAtRest       bool
	IdentifierPolicy        string
	UniformRecoveryResponse bool
	RecoveryMinPassword     int
	SessionIdleTimeout      time.Duration
	TokenBackend            string
	NotifierMode            string
	AuditEnabled            bool
	MetricsEnabled          bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport summarizes the security-relevant posture of a built engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LoginOTPTTL:             e.config.Tokens.LoginOTPTTL,
		PasswordResetTTL:        e.config.Tokens.PasswordResetTTL,
		CodeDigits:              e.config.Tokens.CodeDigits,
		CodesHashedAtRest:       true,
		IdentifierPolicy:        e.config.Login.IdentifierPolicy.String(),
		UniformRecoveryResponse: e.config.Recovery.UniformResponse,
		RecoveryMinPassword:     e.config.Recovery.MinPasswordLength,
		SessionIdleTimeout:      e.config.Session.IdleTimeout,
		TokenBackend:            e.tokenBackend,
		NotifierMode:            e.notifierMode,
		AuditEnabled:            e.audit != nil,
		MetricsEnabled:          e.metrics.Enabled(),
	}
}

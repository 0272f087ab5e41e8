package otpauth

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning. Validate rejects what cannot
// work; Lint flags what works but weakens the deployment.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the messages of warnings at or above min, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(hits))
	for _, w := range hits {
		msgs = append(msgs, w.Code+": "+w.Message)
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint reports weak but valid settings. Call Validate first; Lint assumes a
// valid config.
func (c *Config) Lint() LintResult {
	var r LintResult
	add := func(code string, sev LintSeverity, msg string) {
		r = append(r, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Tokens.CodeDigits < 6 {
		add("code_digits_low", LintHigh, "codes shorter than 6 digits are easy to guess")
	}
	if c.Tokens.LoginOTPTTL > 10*time.Minute {
		add("login_otp_ttl_long", LintWarn, "login codes live longer than 10 minutes")
	}
	if c.Tokens.PasswordResetTTL > time.Hour {
		add("reset_ttl_long", LintWarn, "reset codes live longer than 1 hour")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory below 64 MB")
	}
	if c.Recovery.MinPasswordLength < 8 {
		add("recovery_min_password_low", LintInfo, "recovery accepts passwords shorter than 8 characters")
	}
	if !c.Recovery.UniformResponse {
		add("recovery_reveals_accounts", LintWarn, "recovery reports unknown emails distinctly")
	}
	if c.Session.IdleTimeout > 24*time.Hour {
		add("session_idle_long", LintWarn, "sessions idle for more than 24 hours stay valid")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not recorded")
	}

	return r
}

package otpauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/otpauth/internal"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Password PasswordConfig
	Tokens   TokenConfig
	Login    LoginConfig
	Recovery RecoveryConfig
	Session  SessionConfig
	Notify   NotifyConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int

	// UpgradeOnLogin rehashes a password verified against weaker parameters
	// than the current ones.
	UpgradeOnLogin bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls code shape and lifetime per purpose.
type TokenConfig struct {
	LoginOTPTTL      time.Duration
	PasswordResetTTL time.Duration
	CodeDigits       int
	RedisPrefix      string
}

// TTL returns the lifetime for purpose, or zero for an unknown purpose.
func (c TokenConfig) TTL(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeLoginOTP:
		return c.LoginOTPTTL
	case PurposePasswordReset:
		return c.PasswordResetTTL
	default:
		return 0
	}
}

/*
====================================
FLOW CONFIG
====================================
*/

// IdentifierPolicy selects which account fields a login identifier may match.
type IdentifierPolicy int

const (
	// IdentifierUsernameOrEmail tries the username first, then the email.
	IdentifierUsernameOrEmail IdentifierPolicy = iota
	// IdentifierUsernameOnly matches usernames only.
	IdentifierUsernameOnly
)

func (p IdentifierPolicy) String() string {
	switch p {
	case IdentifierUsernameOrEmail:
		return "username-or-email"
	case IdentifierUsernameOnly:
		return "username-only"
	default:
		return "unknown"
	}
}

// ParseIdentifierPolicy accepts the String forms above.
func ParseIdentifierPolicy(s string) (IdentifierPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "username-or-email":
		return IdentifierUsernameOrEmail, nil
	case "username-only", "username":
		return IdentifierUsernameOnly, nil
	default:
		return 0, errors.New("unknown identifier policy")
	}
}

type LoginConfig struct {
	IdentifierPolicy IdentifierPolicy
}

// RecoveryConfig governs the password recovery flow.
//
// UniformResponse hides whether an email belongs to an account: BeginRecovery
// returns an unaccepted result instead of ErrAccountNotFound.
type RecoveryConfig struct {
	MinPasswordLength int
	UniformResponse   bool
}

/*
====================================
SESSION / NOTIFY / AUDIT / METRICS
====================================
*/

type SessionConfig struct {
	RedisPrefix string
	IdleTimeout time.Duration
}

type NotifyConfig struct {
	Timeout time.Duration
}

// AuditConfig controls the async audit dispatcher. NodeID seeds the snowflake
// generator that stamps event IDs and must be unique per process in a cluster.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	NodeID     int64
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 6-digit codes, 5 minute
// login codes, 15 minute reset codes and a 6 character recovery minimum.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Tokens: TokenConfig{
			LoginOTPTTL:      5 * time.Minute,
			PasswordResetTTL: 15 * time.Minute,
			CodeDigits:       6,
			RedisPrefix:      "otk",
		},
		Login: LoginConfig{
			IdentifierPolicy: IdentifierUsernameOrEmail,
		},
		Recovery: RecoveryConfig{
			MinPasswordLength: 6,
			UniformResponse:   true,
		},
		Session: SessionConfig{
			RedisPrefix: "oss",
			IdleTimeout: 30 * time.Minute,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			NodeID:     1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	// Tokens
	if c.Tokens.LoginOTPTTL <= 0 {
		return errors.New("Tokens LoginOTPTTL must be > 0")
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens PasswordResetTTL must be > 0")
	}
	if c.Tokens.CodeDigits < internal.MinCodeDigits || c.Tokens.CodeDigits > internal.MaxCodeDigits {
		return errors.New("Tokens CodeDigits must be between 4 and 10")
	}
	if strings.TrimSpace(c.Tokens.RedisPrefix) == "" {
		return errors.New("Tokens RedisPrefix must not be empty")
	}

	// Flows
	switch c.Login.IdentifierPolicy {
	case IdentifierUsernameOrEmail, IdentifierUsernameOnly:
	default:
		return errors.New("Login IdentifierPolicy is invalid")
	}
	if c.Recovery.MinPasswordLength < 1 {
		return errors.New("Recovery MinPasswordLength must be >= 1")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Recovery.MinPasswordLength > c.Password.MaxPasswordBytes {
		return errors.New("Recovery MinPasswordLength exceeds Password MaxPasswordBytes")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.IdleTimeout < time.Second {
		return errors.New("Session IdleTimeout must be >= 1s")
	}
	if c.Session.RedisPrefix == c.Tokens.RedisPrefix {
		return errors.New("Session RedisPrefix must differ from Tokens RedisPrefix")
	}

	// Notify
	if c.Notify.Timeout <= 0 {
		return errors.New("Notify Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.NodeID < 0 || c.Audit.NodeID > 1023 {
		return errors.New("Audit NodeID must be between 0 and 1023")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

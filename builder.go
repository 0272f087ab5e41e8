package otpauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/otpauth/internal/stores"
	"github.com/MrEthical07/otpauth/password"
	"github.com/MrEthical07/otpauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dummyPassword is hashed once per engine so that lookups of unknown
// identifiers cost one argon2 verification like real ones.
const dummyPassword = "otpauth-dummy-password"

// Builder assembles an Engine. Stores that are not supplied fall back to
// Redis when WithRedis was called and to process memory otherwise.
//
// A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	tokens    TokenStore
	sessions  SessionStorage
	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs the token ledger and session storage with client unless
// explicit stores are supplied.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithTokenStore(store TokenStore) *Builder {
	b.tokens = store
	return b
}

func (b *Builder) WithSessionStorage(store SessionStorage) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token expiry and session timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cfg,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- CREDENTIAL STORE --------
	engine.accounts = b.accounts
	if engine.accounts == nil {
		engine.accounts = NewMemoryAccountStore()
	}

	// -------- TOKEN LEDGER --------
	tokens := b.tokens
	switch {
	case tokens != nil:
		engine.tokenBackend = "custom"
	case b.redis != nil:
		tokens = stores.NewTokenStore(b.redis, cfg.Tokens.RedisPrefix)
		engine.tokenBackend = "redis"
	default:
		tokens = stores.NewMemoryTokenStore()
		engine.tokenBackend = "memory"
	}
	ledger, err := NewLedger(tokens, cfg.Tokens, now)
	if err != nil {
		return nil, err
	}
	engine.ledger = ledger

	// -------- SESSION STORAGE --------
	engine.sessions = b.sessions
	if engine.sessions == nil {
		if b.redis != nil {
			engine.sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.IdleTimeout)
		} else {
			engine.sessions = session.NewMemoryStore(cfg.Session.IdleTimeout).WithClock(now)
		}
	}

	// -------- NOTIFIER --------
	engine.notifier = b.notifier
	engine.notifierMode = notifierMode(b.notifier)
	if engine.notifier == nil {
		logger.Warn("no notifier configured, codes will not be delivered")
		engine.notifier = NotifierFunc(func(context.Context, Delivery) DeliveryOutcome {
			return Failed("no notifier configured")
		})
		engine.notifierMode = "none"
	}

	// -------- AUDIT --------
	audit, err := newAuditDispatcher(cfg.Audit, b.auditSink)
	if err != nil {
		return nil, err
	}
	engine.audit = audit

	// -------- PASSWORD HASHER --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	dummy, err := ph.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	b.built = true

	return engine, nil
}

// notifierMode labels n for SecurityReport. Notifiers may describe
// themselves by implementing Mode() string.
func notifierMode(n Notifier) string {
	if n == nil {
		return "none"
	}
	if m, ok := n.(interface{ Mode() string }); ok {
		return m.Mode()
	}
	return "custom"
}

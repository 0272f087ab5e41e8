package otpauth

import (
	"context"
	"time"

	"github.com/MrEthical07/otpauth/password"
	"github.com/MrEthical07/otpauth/session"
	"go.uber.org/zap"
)

// Engine runs the registration, two-step login and password recovery flows.
//
// Engine instances are configured once by Builder and then treated as
// immutable. Every exported method is safe for concurrent use when the
// configured stores and notifier are.
type Engine struct {
	config       Config
	accounts     AccountStore
	ledger       *Ledger
	sessions     SessionStorage
	notifier     Notifier
	notifierMode string
	tokenBackend string
	passwordHash *password.Argon2
	dummyHash    string
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped reports how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ledger exposes the token ledger the engine issues codes through.
func (e *Engine) Ledger() *Ledger {
	if e == nil {
		return nil
	}
	return e.ledger
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// SessionState returns the stored state for sessionID. Unknown sessions read
// as the zero state.
func (e *Engine) SessionState(ctx context.Context, sessionID string) (session.State, error) {
	if e == nil || e.sessions == nil {
		return session.State{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return session.State{}, nil
	}
	return e.loadSession(ctx, sessionID)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) loadSession(ctx context.Context, sessionID string) (session.State, error) {
	state, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return session.State{}, e.storageFault("session load", err, zap.String("session", sessionID))
	}
	return state, nil
}

func (e *Engine) saveSession(ctx context.Context, sessionID string, state session.State) error {
	state.UpdatedAt = e.now().Unix()
	if err := e.sessions.Put(ctx, sessionID, state); err != nil {
		return e.storageFault("session save", err, zap.String("session", sessionID))
	}
	return nil
}

// storageFault logs err and wraps it in ErrStorageFault unless it already is one.
func (e *Engine) storageFault(op string, err error, fields ...zap.Field) error {
	e.metricInc(MetricStorageFault)
	e.logger.Error("storage fault", append(fields, zap.String("op", op), zap.Error(err))...)
	return wrapStorageFault(err)
}

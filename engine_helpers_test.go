package otpauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// testConfig keeps argon2 cheap enough for table tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures every delivery and answers with outcome.
type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery
	outcome    DeliveryOutcome
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{outcome: Sent()}
}

func (n *recordingNotifier) Deliver(_ context.Context, d Delivery) DeliveryOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	return n.outcome
}

func (n *recordingNotifier) setOutcome(o DeliveryOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcome = o
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

func (n *recordingNotifier) last(t *testing.T) Delivery {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		t.Fatal("expected at least one delivery")
	}
	return n.deliveries[len(n.deliveries)-1]
}

type testEngine struct {
	*Engine
	clock    *testClock
	notifier *recordingNotifier
	accounts *MemoryAccountStore
}

type engineOption func(*Builder)

func withRedis(rdb *redis.Client) engineOption {
	return func(b *Builder) { b.WithRedis(rdb) }
}

func withConfig(mutate func(*Config)) engineOption {
	return func(b *Builder) {
		cfg := b.config
		mutate(&cfg)
		b.WithConfig(cfg)
	}
}

func newTestEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()

	clock := newTestClock()
	notifier := newRecordingNotifier()
	accounts := NewMemoryAccountStore()

	b := New().
		WithConfig(testConfig()).
		WithAccountStore(accounts).
		WithNotifier(notifier).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:   engine,
		clock:    clock,
		notifier: notifier,
		accounts: accounts,
	}
}

// eachEngine runs fn against the in-memory backends and against Redis.
func eachEngine(t *testing.T, fn func(t *testing.T, te *testEngine)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, newTestEngine(t))
	})
	t.Run("redis", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		fn(t, newTestEngine(t, withRedis(rdb)))
	})
}

func mustRegister(t *testing.T, te *testEngine, username, email, pw string) Account {
	t.Helper()
	account, err := te.Register(context.Background(), username, email, pw)
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", username, err)
	}
	return account
}

// loginToPasswordVerified runs the password step and returns the code that
// was delivered.
func loginToPasswordVerified(t *testing.T, te *testEngine, sid, identifier, pw string) string {
	t.Helper()
	res, err := te.BeginLogin(context.Background(), sid, identifier, pw)
	if err != nil {
		t.Fatalf("BeginLogin failed: %v", err)
	}
	if res.Phase != session.LoginPasswordVerified {
		t.Fatalf("expected password-verified, got %s", res.Phase)
	}
	return te.notifier.last(t).Code
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func assertPhase(t *testing.T, te *testEngine, sid string, login session.LoginPhase, recovery session.RecoveryPhase) {
	t.Helper()
	state, err := te.SessionState(context.Background(), sid)
	if err != nil {
		t.Fatalf("SessionState failed: %v", err)
	}
	if state.Login.Phase != login {
		t.Fatalf("login phase = %s, want %s", state.Login.Phase, login)
	}
	if state.Recovery.Phase != recovery {
		t.Fatalf("recovery phase = %s, want %s", state.Recovery.Phase, recovery)
	}
}

var errStoreDown = errors.New("store down")

// faultyTokenStore fails every call.
type faultyTokenStore struct{}

func (faultyTokenStore) Replace(context.Context, string, string, [32]byte, time.Time, time.Time) error {
	return errStoreDown
}

func (faultyTokenStore) Consume(context.Context, string, string, [32]byte, time.Time) (bool, error) {
	return false, errStoreDown
}

// faultyAccountStore wraps a working store and fails the selected calls.
type faultyAccountStore struct {
	AccountStore
	failCreate bool
	failLookup bool
	failUpdate bool
}

func (s *faultyAccountStore) CreateAccount(ctx context.Context, a Account) (Account, error) {
	if s.failCreate {
		return Account{}, errStoreDown
	}
	return s.AccountStore.CreateAccount(ctx, a)
}

func (s *faultyAccountStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	if s.failLookup {
		return Account{}, errStoreDown
	}
	return s.AccountStore.GetByUsername(ctx, username)
}

func (s *faultyAccountStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	if s.failLookup {
		return Account{}, errStoreDown
	}
	return s.AccountStore.GetByEmail(ctx, email)
}

func (s *faultyAccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if s.failUpdate {
		return errStoreDown
	}
	return s.AccountStore.UpdatePasswordHash(ctx, id, hash)
}

package otpauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/otpauth/internal"
	"github.com/MrEthical07/otpauth/session"
)

func TestLoginHappyPath(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		alice := mustRegister(t, te, "alice", "alice@example.com", "secret")

		res, err := te.BeginLogin(ctx, "sid-1", "alice", "secret")
		if err != nil {
			t.Fatalf("BeginLogin failed: %v", err)
		}
		if res.AccountID != alice.ID || res.Phase != session.LoginPasswordVerified {
			t.Fatalf("unexpected result: %+v", res)
		}
		if res.Delivery.Status != DeliverySent {
			t.Fatalf("expected sent delivery, got %s", res.Delivery.Status)
		}
		if !res.ExpiresAt.Equal(te.clock.Now().Add(5 * time.Minute)) {
			t.Fatalf("ExpiresAt = %v", res.ExpiresAt)
		}

		d := te.notifier.last(t)
		if d.To != "alice@example.com" || d.Purpose != PurposeLoginOTP || d.TTL != 5*time.Minute {
			t.Fatalf("unexpected delivery: %+v", d)
		}
		if !internal.IsNumericCode(d.Code, 6) {
			t.Fatalf("expected 6 digit code, got %q", d.Code)
		}

		if _, err := te.Authorize(ctx, "sid-1"); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated after password step, got %v", err)
		}

		res, err = te.ConfirmLoginCode(ctx, "sid-1", d.Code)
		if err != nil {
			t.Fatalf("ConfirmLoginCode failed: %v", err)
		}
		if res.Phase != session.LoginAuthenticated {
			t.Fatalf("expected fully-authenticated, got %s", res.Phase)
		}

		profile, err := te.Authorize(ctx, "sid-1")
		if err != nil {
			t.Fatalf("Authorize failed: %v", err)
		}
		if profile.Username != "alice" || profile.Email != "alice@example.com" || profile.ID != alice.ID {
			t.Fatalf("unexpected profile: %+v", profile)
		}
	})
}

func TestLoginWrongPasswordLeavesSessionAnonymous(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		mustRegister(t, te, "alice", "alice@example.com", "secret")

		_, err := te.BeginLogin(context.Background(), "sid-1", "alice", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if te.notifier.count() != 0 {
			t.Fatal("no code may be sent for a failed password step")
		}
		assertPhase(t, te, "sid-1", session.LoginAnonymous, session.RecoveryAnonymous)
	})
}

func TestLoginWrongCodeKeepsPasswordVerified(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")

		for _, bad := range []string{wrongCode(code), "abc", ""} {
			_, err := te.ConfirmLoginCode(ctx, "sid-1", bad)
			if !errors.Is(err, ErrInvalidOrExpiredToken) {
				t.Fatalf("ConfirmLoginCode(%q): expected ErrInvalidOrExpiredToken, got %v", bad, err)
			}
			assertPhase(t, te, "sid-1", session.LoginPasswordVerified, session.RecoveryAnonymous)
		}

		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
			t.Fatalf("correct code rejected after wrong attempts: %v", err)
		}
	})
}

func TestLoginCodeResubmittedAfterAuthentication(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")

		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
			t.Fatalf("ConfirmLoginCode failed: %v", err)
		}

		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected resubmission on an authenticated session to fail, got %v", err)
		}
		assertPhase(t, te, "sid-1", session.LoginAuthenticated, session.RecoveryAnonymous)
	})
}

func TestLoginExpiredCode(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")

		te.clock.Advance(5*time.Minute + time.Second)

		_, err := te.ConfirmLoginCode(context.Background(), "sid-1", code)
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
		assertPhase(t, te, "sid-1", session.LoginPasswordVerified, session.RecoveryAnonymous)
	})
}

func TestLoginResendInvalidatesPreviousCode(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		first := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")

		res, err := te.ResendLoginCode(ctx, "sid-1")
		if err != nil {
			t.Fatalf("ResendLoginCode failed: %v", err)
		}
		if res.Phase != session.LoginPasswordVerified {
			t.Fatalf("resend must not change phase, got %s", res.Phase)
		}
		second := te.notifier.last(t)
		if second.To != "alice@example.com" {
			t.Fatalf("resend went to %q", second.To)
		}

		if first != second.Code {
			if _, err := te.ConfirmLoginCode(ctx, "sid-1", first); !errors.Is(err, ErrInvalidOrExpiredToken) {
				t.Fatalf("superseded code must fail, got %v", err)
			}
		}
		if _, err := te.ConfirmLoginCode(ctx, "sid-1", second.Code); err != nil {
			t.Fatalf("resent code rejected: %v", err)
		}
	})
}

func TestLoginStepsOutOfOrder(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()

		if _, err := te.ConfirmLoginCode(ctx, "sid-1", "123456"); !errors.Is(err, ErrFlowOutOfOrder) {
			t.Fatalf("ConfirmLoginCode: expected ErrFlowOutOfOrder, got %v", err)
		}
		if _, err := te.ResendLoginCode(ctx, "sid-1"); !errors.Is(err, ErrFlowOutOfOrder) {
			t.Fatalf("ResendLoginCode: expected ErrFlowOutOfOrder, got %v", err)
		}
		if _, err := te.ConfirmLoginCode(ctx, "", "123456"); !errors.Is(err, ErrFlowOutOfOrder) {
			t.Fatalf("empty session: expected ErrFlowOutOfOrder, got %v", err)
		}
		if _, err := te.ResendLoginCode(ctx, ""); !errors.Is(err, ErrFlowOutOfOrder) {
			t.Fatalf("empty session resend: expected ErrFlowOutOfOrder, got %v", err)
		}
		if te.notifier.count() != 0 {
			t.Fatal("no code may be sent out of order")
		}
		if got := te.MetricsSnapshot().Counters[MetricFlowOutOfOrder]; got != 4 {
			t.Fatalf("expected 4 out-of-order metrics, got %d", got)
		}
	})
}

func TestLogoutClearsSession(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
			t.Fatalf("ConfirmLoginCode failed: %v", err)
		}

		if err := te.Logout(ctx, "sid-1"); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		if _, err := te.Authorize(ctx, "sid-1"); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated after logout, got %v", err)
		}
		assertPhase(t, te, "sid-1", session.LoginAnonymous, session.RecoveryAnonymous)

		if err := te.Logout(ctx, "sid-1"); err != nil {
			t.Fatalf("second Logout failed: %v", err)
		}
	})
}

// putRecorder remembers the last state written for each session.
type putRecorder struct {
	SessionStorage
	last   map[string]session.State
	clears int
}

func (r *putRecorder) Put(ctx context.Context, sessionID string, state session.State) error {
	r.last[sessionID] = state
	return r.SessionStorage.Put(ctx, sessionID, state)
}

func (r *putRecorder) Clear(ctx context.Context, sessionID string) error {
	r.clears++
	return r.SessionStorage.Clear(ctx, sessionID)
}

func TestLogoutWritesAnonymousState(t *testing.T) {
	rec := &putRecorder{
		SessionStorage: session.NewMemoryStore(30 * time.Minute),
		last:           map[string]session.State{},
	}
	te := newTestEngine(t, func(b *Builder) { b.WithSessionStorage(rec) })
	ctx := context.Background()

	mustRegister(t, te, "alice", "alice@example.com", "secret")
	code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
	if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
		t.Fatalf("ConfirmLoginCode failed: %v", err)
	}
	if !rec.last["sid-1"].Authenticated() {
		t.Fatal("expected an authenticated state to be stored")
	}

	if err := te.Logout(ctx, "sid-1"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if !rec.last["sid-1"].IsZero() {
		t.Fatalf("expected anonymous state after logout, got %+v", rec.last["sid-1"])
	}
	if rec.last["sid-1"].UpdatedAt != te.clock.Now().Unix() {
		t.Fatal("logout write must be stamped with the engine clock")
	}
	if rec.clears != 0 {
		t.Fatalf("logout should go through Put, saw %d Clear calls", rec.clears)
	}
	if _, err := te.Authorize(ctx, "sid-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")

		if _, err := te.ConfirmLoginCode(ctx, "sid-2", code); !errors.Is(err, ErrFlowOutOfOrder) {
			t.Fatalf("another session must not use sid-1's login step, got %v", err)
		}
		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
			t.Fatalf("ConfirmLoginCode failed: %v", err)
		}
		if _, err := te.Authorize(ctx, "sid-2"); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("sid-2 must stay anonymous, got %v", err)
		}
	})
}

func TestBeginLoginAgainRestartsSecondStep(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
			t.Fatalf("ConfirmLoginCode failed: %v", err)
		}

		loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
		if _, err := te.Authorize(ctx, "sid-1"); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected re-login to require the code again, got %v", err)
		}
	})
}

func TestLoginDeliveryFailureIsNotFatal(t *testing.T) {
	te := newTestEngine(t)
	mustRegister(t, te, "alice", "alice@example.com", "secret")

	for _, outcome := range []DeliveryOutcome{Failed("smtp down"), Simulated()} {
		te.notifier.setOutcome(outcome)

		res, err := te.BeginLogin(context.Background(), "sid-1", "alice", "secret")
		if err != nil {
			t.Fatalf("BeginLogin failed on %s delivery: %v", outcome.Status, err)
		}
		if res.Delivery.Status != outcome.Status {
			t.Fatalf("delivery status = %s, want %s", res.Delivery.Status, outcome.Status)
		}
		if res.Phase != session.LoginPasswordVerified {
			t.Fatalf("expected password-verified, got %s", res.Phase)
		}
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricDeliveryFailed] != 1 || snap.Counters[MetricDeliverySimulated] != 1 {
		t.Fatalf("unexpected delivery metrics: %+v", snap.Counters)
	}
}

func TestLoginNotifierPanicReportedAsFailure(t *testing.T) {
	engine, err := New().
		WithConfig(testConfig()).
		WithNotifier(NotifierFunc(func(context.Context, Delivery) DeliveryOutcome {
			panic("boom")
		})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Register(context.Background(), "alice", "alice@example.com", "secret"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	res, err := engine.BeginLogin(context.Background(), "sid-1", "alice", "secret")
	if err != nil {
		t.Fatalf("BeginLogin failed: %v", err)
	}
	if res.Delivery.Status != DeliveryFailed {
		t.Fatalf("expected failed delivery, got %s", res.Delivery.Status)
	}
}

func TestLoginTokenStorageFaultLeavesSessionUnchanged(t *testing.T) {
	sessions := session.NewMemoryStore(time.Hour)
	accounts := NewMemoryAccountStore()
	engine, err := New().
		WithConfig(testConfig()).
		WithAccountStore(accounts).
		WithTokenStore(faultyTokenStore{}).
		WithSessionStorage(sessions).
		WithNotifier(newRecordingNotifier()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.Register(ctx, "alice", "alice@example.com", "secret"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err = engine.BeginLogin(ctx, "sid-1", "alice", "secret")
	if !errors.Is(err, ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	state, _ := sessions.Get(ctx, "sid-1")
	if !state.IsZero() {
		t.Fatalf("expected untouched session, got %+v", state)
	}

	// Put the session at the code step by hand and check redeem faults too.
	seeded, _ := session.State{}.BeginLogin("acct", "alice@example.com")
	_ = sessions.Put(ctx, "sid-1", seeded)
	if _, err := engine.ConfirmLoginCode(ctx, "sid-1", "123456"); !errors.Is(err, ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault from redeem, got %v", err)
	}
	state, _ = sessions.Get(ctx, "sid-1")
	if state.Login.Phase != session.LoginPasswordVerified {
		t.Fatalf("expected password-verified to survive a fault, got %s", state.Login.Phase)
	}
}

func TestLoginWithRedisSessionOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)
	te := newTestEngine(t, withRedis(rdb))
	mustRegister(t, te, "alice", "alice@example.com", "secret")

	mr.Close()

	if _, err := te.BeginLogin(context.Background(), "sid-1", "alice", "secret"); !errors.Is(err, ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault, got %v", err)
	}
	if _, err := te.Authorize(context.Background(), "sid-1"); !errors.Is(err, ErrStorageFault) {
		t.Fatalf("expected ErrStorageFault from Authorize, got %v", err)
	}
}

func TestLoginMetrics(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, te, "alice", "alice@example.com", "secret")

	_, _ = te.BeginLogin(ctx, "sid-1", "alice", "wrong")
	code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
	_, _ = te.ConfirmLoginCode(ctx, "sid-1", wrongCode(code))
	_, _ = te.ConfirmLoginCode(ctx, "sid-1", code)
	_ = te.Logout(ctx, "sid-1")

	snap := te.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricLoginPasswordFailure: 1,
		MetricLoginPasswordSuccess: 1,
		MetricLoginCodeFailure:     1,
		MetricLoginCodeSuccess:     1,
		MetricTokenIssued:          1,
		MetricTokenRedeemed:        1,
		MetricTokenRejected:        1,
		MetricLogout:               1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d = %d, want %d", id, snap.Counters[id], v)
		}
	}
}

func TestRotateSessionMovesState(t *testing.T) {
	eachEngine(t, func(t *testing.T, te *testEngine) {
		ctx := context.Background()
		mustRegister(t, te, "alice", "alice@example.com", "secret")
		code := loginToPasswordVerified(t, te, "sid-1", "alice", "secret")
		if _, err := te.ConfirmLoginCode(ctx, "sid-1", code); err != nil {
			t.Fatalf("ConfirmLoginCode failed: %v", err)
		}

		if err := te.RotateSession(ctx, "sid-1", "sid-2"); err != nil {
			t.Fatalf("RotateSession failed: %v", err)
		}
		if _, err := te.Authorize(ctx, "sid-1"); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("old session must be cleared, got %v", err)
		}
		profile, err := te.Authorize(ctx, "sid-2")
		if err != nil || profile.Username != "alice" {
			t.Fatalf("Authorize(sid-2) = %+v, %v", profile, err)
		}
		if got := te.MetricsSnapshot().Counters[MetricSessionRotated]; got != 1 {
			t.Fatalf("expected 1 rotation metric, got %d", got)
		}

		for _, ids := range [][2]string{{"", "x"}, {"x", ""}, {"sid-2", "sid-2"}} {
			if err := te.RotateSession(ctx, ids[0], ids[1]); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("RotateSession(%q, %q): expected ErrInvalidInput, got %v", ids[0], ids[1], err)
			}
		}
	})
}

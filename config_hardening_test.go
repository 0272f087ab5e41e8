package otpauth

import (
	"context"
	"testing"
	"time"
)

func TestBuildCopiesConfig(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.Tokens.LoginOTPTTL = time.Hour

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if engine.Config().Tokens.LoginOTPTTL != 5*time.Minute {
		t.Fatal("engine config changed after external mutation")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Tokens.CodeDigits = 2
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected Build to reject invalid config")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildWithoutNotifierReportsFailedDelivery(t *testing.T) {
	engine, err := New().WithConfig(testConfig()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.Register(ctx, "alice", "alice@example.com", "secret"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	res, err := engine.BeginLogin(ctx, "sid-1", "alice", "secret")
	if err != nil {
		t.Fatalf("BeginLogin failed: %v", err)
	}
	if res.Delivery.Status != DeliveryFailed {
		t.Fatalf("expected failed delivery without notifier, got %s", res.Delivery.Status)
	}
}

type modeNotifier struct{ recordingNotifier }

func (*modeNotifier) Mode() string { return "smtp" }

func TestSecurityReportReflectsPosture(t *testing.T) {
	_, rdb := newTestRedis(t)
	te := newTestEngine(t, withRedis(rdb), withConfig(func(c *Config) {
		c.Tokens.CodeDigits = 8
		c.Recovery.UniformResponse = false
		c.Login.IdentifierPolicy = IdentifierUsernameOnly
	}))

	r := te.SecurityReport()
	if r.CodeDigits != 8 || r.LoginOTPTTL != 5*time.Minute || r.PasswordResetTTL != 15*time.Minute {
		t.Fatalf("unexpected token posture: %+v", r)
	}
	if !r.CodesHashedAtRest {
		t.Fatal("codes must be reported as hashed at rest")
	}
	if r.UniformRecoveryResponse || r.IdentifierPolicy != "username-only" {
		t.Fatalf("unexpected flow posture: %+v", r)
	}
	if r.TokenBackend != "redis" || r.NotifierMode != "custom" {
		t.Fatalf("unexpected backends: token=%q notifier=%q", r.TokenBackend, r.NotifierMode)
	}
	if r.Argon2.Memory != 8*1024 {
		t.Fatalf("unexpected argon2 memory: %d", r.Argon2.Memory)
	}

	engine, err := New().WithConfig(testConfig()).WithNotifier(&modeNotifier{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if got := engine.SecurityReport(); got.NotifierMode != "smtp" || got.TokenBackend != "memory" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

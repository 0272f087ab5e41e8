package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/internal/logging"
	"github.com/MrEthical07/otpauth/internal/server"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/metrics/export/prometheus"
	"github.com/MrEthical07/otpauth/notify"
	"github.com/MrEthical07/otpauth/storage/mongodb"
	"github.com/MrEthical07/otpauth/storage/postgres"
)

func main() {
	os.Exit(serve())
}

// serve returns the process exit code so deferred log flushing runs first.
func serve() int {
	// best effort: a missing .env leaves the real environment in charge
	_ = godotenv.Load()

	lg, logCloser, err := logging.Init(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	defer lg.Sync()

	if err := run(lg); err != nil {
		lg.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(lg *zap.Logger) error {
	cfg, err := configFromEnv()
	if err != nil {
		return err
	}
	if !cfg.SecretFromEnv {
		lg.Warn("SESSION_SECRET not set; using a random secret, sessions will not survive restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := newBuilder(cfg, lg)

	redisClient, closeRedis, err := openRedis(cfg.RedisAddr, lg)
	if err != nil {
		return err
	}
	defer closeRedis()
	if redisClient != nil {
		builder = builder.WithRedis(redisClient)
	}

	pruner, closeStore, err := attachStore(ctx, builder, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()
	if pruner != nil {
		go runPruner(ctx, pruner, cfg.PruneInterval, time.Now, lg.Named("prune"))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	for _, w := range cfg.Engine.Lint() {
		lg.Warn("config lint", zap.String("code", w.Code), zap.String("severity", w.Severity.String()), zap.String("message", w.Message))
	}
	report := engine.SecurityReport()
	lg.Info("engine ready",
		zap.String("token_backend", report.TokenBackend),
		zap.String("notifier", report.NotifierMode),
		zap.Duration("login_otp_ttl", report.LoginOTPTTL),
		zap.Duration("password_reset_ttl", report.PasswordResetTTL),
		zap.String("identifier_policy", report.IdentifierPolicy),
	)

	tickets, err := jwt.NewManager(jwt.Config{
		TTL:           24 * time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        "otpauth",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("session tickets: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.NewRouter(server.Options{
			Engine:       engine,
			Tickets:      tickets,
			SecureCookie: cfg.CookieSecure,
			TrustProxy:   cfg.TrustProxy,
			Metrics:      prometheus.New(engine).Handler(),
			Logger:       lg,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newBuilder applies the settings shared by every store mode. NewZapSink
// names its own logger, so it gets lg as is.
func newBuilder(cfg serverConfig, lg *zap.Logger) *otpauth.Builder {
	return otpauth.New().
		WithConfig(cfg.Engine).
		WithLogger(lg).
		WithAuditSink(otpauth.NewZapSink(lg)).
		WithNotifier(notify.New(cfg.SMTP, lg.Named("notify")))
}

func openRedis(addr string, lg *zap.Logger) (redis.UniversalClient, func(), error) {
	switch addr {
	case "":
		return nil, func() {}, nil
	case embeddedRedis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		lg.Info("using embedded miniredis", zap.String("addr", mr.Addr()))
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	default:
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return client, func() { _ = client.Close() }, nil
	}
}

// attachStore wires the account and token stores. A database store carries
// both; the memory mode leaves the builder to its defaults. The returned
// pruner is non-nil for stores that need expired token rows swept.
func attachStore(ctx context.Context, b *otpauth.Builder, cfg serverConfig, lg *zap.Logger) (tokenPruner, func(), error) {
	switch cfg.Store {
	case "postgres":
		store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		b.WithAccountStore(store).WithTokenStore(store)
		lg.Info("using postgres store")
		return store, func() { _ = store.Close() }, nil
	case "mongo":
		// the TTL index on exp expires token documents server-side
		store, err := mongodb.Connect(ctx, cfg.MongoURI, mongodb.Config{})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, err
		}
		b.WithAccountStore(store).WithTokenStore(store)
		lg.Info("using mongo store")
		return nil, func() { _ = store.Close(context.Background()) }, nil
	default:
		lg.Info("using in-memory account store")
		return nil, func() {}, nil
	}
}

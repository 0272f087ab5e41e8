package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/notify"
)

const (
	embeddedRedis        = "embedded"
	defaultPruneInterval = 10 * time.Minute
)

type serverConfig struct {
	Addr          string
	Store         string
	DatabaseURL   string
	MongoURI      string
	RedisAddr     string
	Secret        []byte
	SecretFromEnv bool
	CookieSecure  bool
	TrustProxy    bool
	PruneInterval time.Duration
	Engine        otpauth.Config
	SMTP          notify.Config
}

// configFromEnv reads the process environment. Unknown values fail fast;
// missing ones fall back to development defaults.
func configFromEnv() (serverConfig, error) {
	cfg := serverConfig{
		Addr:         envOr("HTTP_ADDR", ":8080"),
		Store:        strings.ToLower(envOr("STORE", "memory")),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		CookieSecure: os.Getenv("COOKIE_SECURE") == "1",
		TrustProxy:   os.Getenv("TRUST_PROXY") == "1",
		Engine:       otpauth.DefaultConfig(),
	}

	switch cfg.Store {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("STORE=postgres requires DATABASE_URL")
		}
	case "mongo":
		if cfg.MongoURI == "" {
			return cfg, fmt.Errorf("STORE=mongo requires MONGO_URI")
		}
	default:
		return cfg, fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		cfg.Secret = []byte(secret)
		cfg.SecretFromEnv = true
	} else {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return cfg, fmt.Errorf("generate session secret: %w", err)
		}
	}

	if v := os.Getenv("LOGIN_IDENTIFIER"); v != "" {
		policy, err := otpauth.ParseIdentifierPolicy(v)
		if err != nil {
			return cfg, err
		}
		cfg.Engine.Login.IdentifierPolicy = policy
	}
	if v := os.Getenv("RECOVERY_UNIFORM_RESPONSE"); v != "" {
		cfg.Engine.Recovery.UniformResponse = v != "0"
	}
	cfg.Engine.Metrics.Enabled = true
	cfg.Engine.Metrics.EnableLatencyHistograms = true
	cfg.Engine.Audit.Enabled = os.Getenv("AUDIT") != "0"

	cfg.PruneInterval = defaultPruneInterval
	if v := os.Getenv("PRUNE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("PRUNE_INTERVAL: invalid duration %q", v)
		}
		cfg.PruneInterval = d
	}

	port := 0
	if v := os.Getenv("SMTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("SMTP_PORT: %w", err)
		}
		port = p
	}
	cfg.SMTP = notify.Config{
		Host:       os.Getenv("SMTP_HOST"),
		Port:       port,
		Username:   os.Getenv("SMTP_USERNAME"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		From:       os.Getenv("SMTP_FROM"),
		SenderName: envOr("SMTP_SENDER_NAME", notify.DefaultSenderName),
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

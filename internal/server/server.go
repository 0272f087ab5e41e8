// Package server exposes the otpauth engine as a JSON HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/jwt"
	"github.com/MrEthical07/otpauth/middleware"
)

const (
	loginStart    = "/login"
	recoveryStart = "/recovery"
	maxBodyBytes  = 1 << 16
)

type Options struct {
	Engine       *otpauth.Engine
	Tickets      *jwt.Manager
	SecureCookie bool
	TrustProxy   bool
	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler
	Logger  *zap.Logger
}

type handlers struct {
	engine   *otpauth.Engine
	sessions *middleware.Sessions
	logger   *zap.Logger
}

// NewRouter wires every route. Session-bearing routes run inside
// Sessions.Load; /dashboard additionally requires a fully authenticated
// session.
func NewRouter(opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := &middleware.Sessions{Tickets: opts.Tickets, Secure: opts.SecureCookie}
	h := &handlers{engine: opts.Engine, sessions: sessions, logger: logger}

	r := mux.NewRouter()
	r.Use(accessLog(logger), middleware.ClientInfo(opts.TrustProxy))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	r.HandleFunc("/register", h.register).Methods(http.MethodPost)

	s := r.NewRoute().Subrouter()
	s.Use(sessions.Load)
	s.HandleFunc("/login", h.login).Methods(http.MethodPost)
	s.HandleFunc("/login/verify", h.loginVerify).Methods(http.MethodPost)
	s.HandleFunc("/login/resend", h.loginResend).Methods(http.MethodPost)
	s.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	s.HandleFunc("/recovery", h.recovery).Methods(http.MethodPost)
	s.HandleFunc("/recovery/verify", h.recoveryVerify).Methods(http.MethodPost)
	s.HandleFunc("/recovery/resend", h.recoveryResend).Methods(http.MethodPost)
	s.HandleFunc("/recovery/reset", h.recoveryReset).Methods(http.MethodPost)
	s.Handle("/dashboard",
		middleware.RequireAuthenticated(opts.Engine, loginStart)(http.HandlerFunc(h.dashboard)),
	).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpauth"
)

type profileContextKey struct{}

// ProfileFromContext returns the profile installed by RequireAuthenticated.
func ProfileFromContext(ctx context.Context) (otpauth.Profile, bool) {
	p, ok := ctx.Value(profileContextKey{}).(otpauth.Profile)
	return p, ok
}

// Authorizer is the slice of *otpauth.Engine the guard needs.
type Authorizer interface {
	Authorize(ctx context.Context, sessionID string) (otpauth.Profile, error)
}

// RequireAuthenticated lets a request through only when its session has
// completed both login steps. Other sessions get 303 See Other to loginPath.
// It must run inside Sessions.Load.
func RequireAuthenticated(engine Authorizer, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sid, _ := SessionIDFromContext(r.Context())
			profile, err := engine.Authorize(r.Context(), sid)
			switch {
			case errors.Is(err, otpauth.ErrNotAuthenticated):
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			case err != nil:
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), profileContextKey{}, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo records the caller's address and User-Agent for audit events.
// X-Forwarded-For is honored only when trustProxy is set.
func ClientInfo(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otpauth.WithClientIP(r.Context(), clientIP(r, trustProxy))
			ctx = otpauth.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

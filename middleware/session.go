package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/MrEthical07/otpauth/jwt"
)

const DefaultCookieName = "otpauth_session"

type sessionIDContextKey struct{}

// SessionIDFromContext returns the session ID installed by Sessions.Load.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDContextKey{}).(string)
	return sid, ok && sid != ""
}

// Sessions binds requests to server-side sessions through a signed cookie.
type Sessions struct {
	Tickets    *jwt.Manager
	CookieName string
	Secure     bool
	NewID      func() string
}

func (s *Sessions) cookieName() string {
	if s.CookieName == "" {
		return DefaultCookieName
	}
	return s.CookieName
}

func (s *Sessions) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Load attaches a session ID to every request. A missing, expired or forged
// ticket is replaced by a fresh session; the old ID is never reused.
func (s *Sessions) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s == nil || s.Tickets == nil {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		sid := ""
		if cookie, err := r.Cookie(s.cookieName()); err == nil {
			if claims, err := s.Tickets.Parse(cookie.Value); err == nil {
				sid = claims.SID
			}
		}

		if sid == "" {
			sid = s.newID()
			ticket, err := s.Tickets.Issue(sid)
			if err != nil {
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, s.cookie(ticket))
		}

		ctx := context.WithValue(r.Context(), sessionIDContextKey{}, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Sessions) cookie(ticket string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName(),
		Value:    ticket,
		Path:     "/",
		MaxAge:   int(s.Tickets.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Rotate mints a new session ID for the request, lets move transfer the
// server-side state from the old ID, and then replaces the cookie. On error
// the old cookie stays in place.
func (s *Sessions) Rotate(w http.ResponseWriter, r *http.Request, move func(oldID, newID string) error) (string, error) {
	if s == nil || s.Tickets == nil {
		return "", errors.New("session tickets not configured")
	}
	oldID, ok := SessionIDFromContext(r.Context())
	if !ok {
		return "", errors.New("no session on request")
	}

	newID := s.newID()
	ticket, err := s.Tickets.Issue(newID)
	if err != nil {
		return "", err
	}
	if err := move(oldID, newID); err != nil {
		return "", err
	}
	http.SetCookie(w, s.cookie(ticket))
	return newID, nil
}

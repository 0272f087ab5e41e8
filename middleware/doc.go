// Package middleware adapts otpauth sessions to net/http.
//
// # Handlers
//
//   - [Sessions.Load] resolves the session cookie to a session ID, minting a
//     fresh ID and ticket when the cookie is absent or invalid.
//   - [RequireAuthenticated] admits only fully authenticated sessions and
//     redirects everything else to the login page.
//   - [ClientInfo] copies the client IP and User-Agent into the context for
//     audit events.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// decide whether a session is authenticated; Engine.Authorize does.
//
// # What this package must NOT do
//
//   - Treat a valid ticket as proof of authentication.
//   - Read or write session state directly.
package middleware

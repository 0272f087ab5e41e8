// Package jwt signs and verifies session tickets: short JWTs carried in a
// cookie whose sid claim names a server-side session.
//
// A valid ticket proves only that this server minted the session ID. It says
// nothing about which step of login or recovery the session has reached.
// Callers must load the session to learn that.
package jwt

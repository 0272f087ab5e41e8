// Package stores persists short-lived, single-use token records for the
// login-otp and password-reset purposes.
//
// # Design
//
// Each (purpose, account) pair owns exactly one slot. Replace overwrites the
// slot in one step, so issuing a new code invalidates the previous one. Consume
// is a check-and-flip: the Redis store uses WATCH/MULTI with a bounded retry
// loop, the memory store a single mutex. Records carry only a SHA-256 digest
// of the code, compared in constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for token records.
// It does NOT generate codes, choose TTLs, or drive session transitions.
// Those belong to the otpauth Ledger and Engine.
//
// # What this package must NOT do
//
//   - Import otpauth or any sibling internal package.
//   - Log or store plaintext codes.
//   - Report "wrong code", "expired" and "already used" differently.
package stores

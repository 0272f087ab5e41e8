// Package internal holds helpers private to otpauth: numeric code generation
// and the owner-bound code digest used by every token store.
//
// # Sub-packages
//
//   - stores: Redis and in-memory token stores with atomic replace/consume
//   - logging: zap logger construction with optional daily file rotation
//   - server: the HTTP surface over an otpauth Engine
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpauth API.
//   - Log or return plaintext codes other than from NewNumericCode.
package internal

// Package otpauth implements two-step authentication: a password check
// followed by a single-use numeric code delivered out of band, plus password
// recovery through a single-use reset code.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// otpauth is the public surface. It exposes [Engine], [Builder], [Config],
// [Ledger] and the store and notifier contracts ([AccountStore],
// [TokenStore], [SessionStorage], [Notifier]). Session transitions live in
// the session package as pure functions; the Engine sequences side effects
// around them. Redis and in-memory token records live under internal/stores.
//
// # Ordering guarantees
//
// Every flow step writes the session last. A storage fault in the credential
// store or the token ledger therefore leaves the caller's session exactly as
// it was.
//
// # What this package must NOT do
//
//   - Log, audit or persist plaintext codes or passwords.
//   - Abort a flow because delivery failed.
//   - Import any sub-package that re-imports otpauth (no import cycles).
package otpauth

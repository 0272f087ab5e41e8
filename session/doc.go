// Package session models per-caller authentication progress and persists it.
//
// # State machine
//
// [State] carries two independent tracks. The login track moves
// anonymous → password-verified → fully-authenticated. The recovery track moves
// anonymous → identity-confirmed → code-verified and is cleared when the
// password is replaced. Transitions are value methods on State that return
// [ErrTransition] for illegal moves; they have no side effects.
//
// # Binary encoding
//
// States are stored as a compact versioned binary blob ([Encode], [Decode]).
// Unknown versions and truncated blobs decode to [ErrStateCorrupt].
//
// # Architecture boundaries
//
// This package owns the State model, its transitions and its storage
// ([RedisStore], [MemoryStore]). It does NOT verify passwords, issue or redeem
// codes, or send notifications. The Engine sequences those around the
// transitions.
//
// # What this package must NOT do
//
//   - Import otpauth, jwt, or notify (no upward imports).
//   - Store passwords or codes in [State] fields.
package session

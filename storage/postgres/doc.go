// Package postgres stores otpauth accounts and token records in PostgreSQL.
//
// Uniqueness of username and email is enforced by the database, so two
// concurrent registrations for the same identity resolve to one row and one
// ErrDuplicateIdentity. Token slots are keyed by (account_id, purpose):
// Replace is a single upsert and Consume a single conditional UPDATE, which
// makes both atomic without explicit transactions.
package postgres

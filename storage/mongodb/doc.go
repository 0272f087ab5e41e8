// Package mongodb stores otpauth accounts and token records in MongoDB.
//
// Unique indexes on username and email make registration insert-or-fail.
// Each token slot is one document keyed by purpose and account; Consume is a
// single FindOneAndUpdate whose filter carries the digest, the consumed flag
// and the expiry, so exactly one concurrent caller matches. A TTL index lets
// the server remove expired slots on its own.
package mongodb

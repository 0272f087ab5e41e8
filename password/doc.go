// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters than
// the current configuration; otpauth rehashes those after a successful
// password step.
//
// The package only hashes. Length rules for new passwords are checked by the
// otpauth Engine, and it never imports otpauth or logs plaintext.
package password

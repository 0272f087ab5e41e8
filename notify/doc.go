// Package notify implements otpauth.Notifier over SMTP, with a console
// simulation for deployments where mail is not configured.
//
// # Architecture boundaries
//
// notify renders and transports messages. It never decides whether a flow
// proceeds: every failure is reported as an otpauth.DeliveryOutcome.
//
// # What this package must NOT do
//
//   - Return errors or panic from Deliver.
//   - Retry on its own; Fallback is the only second attempt.
package notify

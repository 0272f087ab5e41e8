// Package prometheus renders otpauth engine metrics in Prometheus text
// exposition format. Counters are named otpauth_*_total; the one histogram is
// otpauth_credential_verify_latency_seconds.
//
// Nothing is registered globally. Callers mount Exporter.Handler themselves.
package prometheus

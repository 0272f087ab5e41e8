// Package otel publishes otpauth engine metrics through an OpenTelemetry
// Meter supplied by the caller. Counters become Int64ObservableCounters with
// the same otpauth_*_total names the Prometheus exporter uses; the latency
// histogram becomes a bucket gauge keyed by an "le" attribute plus a count
// gauge.
package otel

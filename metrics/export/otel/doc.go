// Package otel binds jwtauth metrics to an OpenTelemetry meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine
// operation (jwtauth.authenticate, jwtauth.issue, jwtauth.refresh,
// jwtauth.keys) carrying an "outcome" attribute, cumulative latency bucket
// gauges keyed by "le", and jwtauth.audit.dropped keyed by audit event
// "kind". One callback reads [jwtauth.Engine.MetricsSnapshot] per
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel

// Package prometheus exposes jwtauth metrics to Prometheus.
//
// [PrometheusExporter] implements prometheus.Collector and reads
// [jwtauth.Engine.MetricsSnapshot] on each scrape. Counter names are
// jwtauth_*_total; the single histogram is jwtauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry unless the caller asks via Register(nil).
//   - Mutate engine state.
package prometheus

// Package prometheus exposes goGuard engine metrics as a client_golang
// [prometheus.Collector].
//
// [NewCollector] reads [goGuard.Engine.MetricsSnapshot] on every scrape.
// Counter names are prefixed goguard_*_total; the single histogram is
// goguard_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register
//     the collector or mount [Handler].
//   - Mutate engine state.
package prometheus

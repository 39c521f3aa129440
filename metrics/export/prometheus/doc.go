// Package prometheus exposes agentAuth metrics to Prometheus.
//
// [PrometheusExporter] renders the text exposition format directly and can
// be mounted as an [http.Handler]. [Collector] implements the client_golang
// Collector interface for hosts that already run a registry. Counter names
// are prefixed agentauth_*_total; the single histogram is
// agentauth_flow_transaction_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register
//     the Collector or mount the Handler.
//   - Mutate engine state.
package prometheus

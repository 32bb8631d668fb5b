// Package api hosts the optional status server for a running probe.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/chains for the current chain table, streak and threshold.
//   - GET /v1/summary for the folded progress summary.
//   - POST /v1/stop to request a cooperative stop, the same as SIGINT.
package api

// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and an in-memory run summary.
package sinks

// Package progress carries probe-level events from workers to observers. A
// Hub buffers events without blocking the worker loop and fans batches out to
// sinks such as the log, Prometheus collectors or the run summary served by
// the status API.
package progress

// Package observability provides a lifecycle-counter extension for
// Conductor. The MetricsExtension implements ext hooks to count enqueues,
// completions, retries, dead-letters, abandoned attempts, cancellations,
// manual retries and schedule fires.
//
// For per-attempt tracing and duration metrics, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability

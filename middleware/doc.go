// Package middleware provides composable middleware for job execution.
//
// A [Middleware] wraps one attempt of an envelope. Middleware are composed
// into a chain using [Chain]; the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs type, workspace, attempt and outcome
//   - [Recover] converts handler panics into errors
//   - [Timeout] enforces the envelope's per-attempt deadline
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records per-type duration and outcome
//   - [Scope] puts the envelope's workspace on the context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, e *job.Envelope, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware must call next unless intentionally short-circuiting.
package middleware

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/conductor/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics become transient errors and are logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e *job.Envelope, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_id", e.ID.String()),
					slog.String("job_type", e.Type.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = panicError(e, r)
			}
		}()
		return next(ctx)
	}
}

func panicError(e *job.Envelope, r any) error {
	return fmt.Errorf("panic in %s job %s: %v", e.Type, e.Name, r)
}

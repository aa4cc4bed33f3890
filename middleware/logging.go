package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conductor/job"
)

// Logging returns middleware that logs attempt start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e *job.Envelope, next Handler) error {
		attrs := []any{
			slog.String("job_id", e.ID.String()),
			slog.String("job_type", e.Type.String()),
			slog.String("workspace_id", e.WorkspaceID),
			slog.Int("attempt", e.AttemptsMade+1),
			slog.Int("max_attempts", e.Retry.MaxAttempts),
		}
		logger.Info("job started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Error("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Info("job completed", attrs...)
		}
		return err
	}
}

// Package worker provides the job execution engine: an Executor that
// invokes registered handlers through middleware and applies the retry
// engine's decision, and a Pool that runs a bounded number of worker
// goroutines against one job type's queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/middleware"
	"github.com/xraph/conductor/retry"
)

// errNoHandler is recorded as the failure reason when a type has no
// registered handler.
var errNoHandler = errors.New("no handler registered")

// Executor runs a single attempt through middleware and the registered
// handler, then persists the resulting transition and emits lifecycle
// events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	retry      *retry.Engine
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		retry:      retry.New(),
		mw:         middleware.Chain(mws...),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs one attempt of an active envelope.
// On success: marks completed, emits JobCompleted.
// On transient failure with attempts left: requeues as delayed, emits JobRetrying.
// Otherwise: marks dead-letter, emits JobDeadLettered.
// A type without a handler is abandoned into the failed status.
func (x *Executor) Execute(ctx context.Context, e *job.Envelope) error {
	handler, ok := x.registry.Get(e.Type)
	if !ok {
		return x.Abandon(ctx, e, fmt.Sprintf("%v for %s", errNoHandler, e.Type))
	}

	start := time.Now()
	terminal := func(ctx context.Context) error {
		return handler(ctx, e.Payload)
	}
	err := x.mw(ctx, e, terminal)
	elapsed := time.Since(start)

	// Persist even when the attempt context was cancelled by shutdown.
	persistCtx := context.WithoutCancel(ctx)
	now := x.now()

	if err == nil {
		x.retry.OnSuccess(e, now)
		if updateErr := x.store.Update(persistCtx, e); updateErr != nil {
			x.logger.Error("failed to update job after success",
				slog.String("job_id", e.ID.String()),
				slog.String("job_type", e.Type.String()),
				slog.String("error", updateErr.Error()),
			)
			return updateErr
		}
		x.extensions.EmitJobCompleted(persistCtx, e, elapsed)
		return nil
	}

	d := x.retry.OnFailure(e, err, now)
	switch d.Action {
	case retry.ActionRetry:
		if requeueErr := x.store.Requeue(persistCtx, e); requeueErr != nil {
			x.logger.Error("failed to requeue job for retry",
				slog.String("job_id", e.ID.String()),
				slog.String("error", requeueErr.Error()),
			)
			return requeueErr
		}
		x.extensions.EmitJobRetrying(persistCtx, e, e.AttemptsMade, d.NextRunAt)
		x.logger.Info("job scheduled for retry",
			slog.String("job_id", e.ID.String()),
			slog.String("job_type", e.Type.String()),
			slog.Int("attempt", e.AttemptsMade),
			slog.Int("max_attempts", e.Retry.MaxAttempts),
			slog.Duration("delay", d.Delay),
		)
		return fmt.Errorf("job %s attempt %d/%d: %w", e.ID, e.AttemptsMade, e.Retry.MaxAttempts, err)

	default:
		if updateErr := x.store.Update(persistCtx, e); updateErr != nil {
			x.logger.Error("failed to update job as dead-letter",
				slog.String("job_id", e.ID.String()),
				slog.String("error", updateErr.Error()),
			)
			return updateErr
		}
		x.extensions.EmitJobDeadLettered(persistCtx, e, err)
		x.logger.Warn("job moved to dead-letter",
			slog.String("job_id", e.ID.String()),
			slog.String("job_type", e.Type.String()),
			slog.Int("attempts_made", e.AttemptsMade),
			slog.Bool("permanent", d.Permanent),
			slog.String("error", err.Error()),
		)
		return err
	}
}

// Abandon ends an active attempt without a handler verdict. The attempt
// counts against the budget and the envelope waits in failed for a
// manual retry.
func (x *Executor) Abandon(ctx context.Context, e *job.Envelope, reason string) error {
	ctx = context.WithoutCancel(ctx)
	x.retry.OnAbandon(e, reason, x.now())
	if err := x.store.Update(ctx, e); err != nil {
		x.logger.Error("failed to update abandoned job",
			slog.String("job_id", e.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	x.extensions.EmitJobAbandoned(ctx, e, reason)
	x.logger.Warn("job abandoned",
		slog.String("job_id", e.ID.String()),
		slog.String("job_type", e.Type.String()),
		slog.String("reason", reason),
	)
	return nil
}

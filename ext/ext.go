package ext

import (
	"context"
	"time"

	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after an envelope is accepted into its queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, e *job.Envelope) error
}

// JobStarted is called when a worker begins an attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, e *job.Envelope) error
}

// JobCompleted is called after an attempt succeeds.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, e *job.Envelope, elapsed time.Duration) error
}

// JobRetrying is called when an attempt fails and a retry is scheduled.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, e *job.Envelope, attempt int, nextRunAt time.Time) error
}

// JobDeadLettered is called when an envelope moves to dead-letter.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, e *job.Envelope, err error) error
}

// JobAbandoned is called when an attempt ends in the failed status.
type JobAbandoned interface {
	OnJobAbandoned(ctx context.Context, e *job.Envelope, reason string) error
}

// JobCancelled is called after a queued envelope is cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, e *job.Envelope) error
}

// JobRequeued is called after a manual retry puts an envelope back in
// its queue.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, e *job.Envelope) error
}

// ScheduleFired is called when a recurring schedule enqueues an envelope.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

package ext

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued     []entry[JobEnqueued]
	jobStarted      []entry[JobStarted]
	jobCompleted    []entry[JobCompleted]
	jobRetrying     []entry[JobRetrying]
	jobDeadLettered []entry[JobDeadLettered]
	jobAbandoned    []entry[JobAbandoned]
	jobCancelled    []entry[JobCancelled]
	jobRequeued     []entry[JobRequeued]
	scheduleFired   []entry[ScheduleFired]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and caches it under every hook it
// implements. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, entry[JobEnqueued]{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, entry[JobRetrying]{name, h})
	}
	if h, ok := e.(JobDeadLettered); ok {
		r.jobDeadLettered = append(r.jobDeadLettered, entry[JobDeadLettered]{name, h})
	}
	if h, ok := e.(JobAbandoned); ok {
		r.jobAbandoned = append(r.jobAbandoned, entry[JobAbandoned]{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, entry[JobCancelled]{name, h})
	}
	if h, ok := e.(JobRequeued); ok {
		r.jobRequeued = append(r.jobRequeued, entry[JobRequeued]{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, entry[ScheduleFired]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extension(nil), r.extensions...)
}

// emit snapshots the cached entries under the read lock and calls fn for
// each one outside it.
func emit[H any](r *Registry, entries *[]entry[H], hook string, fn func(H) error) {
	r.mu.RLock()
	snapshot := *entries
	r.mu.RUnlock()

	for _, e := range snapshot {
		if err := fn(e.hook); err != nil {
			r.logHookError(hook, e.name, err)
		}
	}
}

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, e *job.Envelope) {
	emit(r, &r.jobEnqueued, "OnJobEnqueued", func(h JobEnqueued) error {
		return h.OnJobEnqueued(ctx, e)
	})
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, e *job.Envelope) {
	emit(r, &r.jobStarted, "OnJobStarted", func(h JobStarted) error {
		return h.OnJobStarted(ctx, e)
	})
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, e *job.Envelope, elapsed time.Duration) {
	emit(r, &r.jobCompleted, "OnJobCompleted", func(h JobCompleted) error {
		return h.OnJobCompleted(ctx, e, elapsed)
	})
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, e *job.Envelope, attempt int, nextRunAt time.Time) {
	emit(r, &r.jobRetrying, "OnJobRetrying", func(h JobRetrying) error {
		return h.OnJobRetrying(ctx, e, attempt, nextRunAt)
	})
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, e *job.Envelope, jobErr error) {
	emit(r, &r.jobDeadLettered, "OnJobDeadLettered", func(h JobDeadLettered) error {
		return h.OnJobDeadLettered(ctx, e, jobErr)
	})
}

// EmitJobAbandoned notifies all extensions that implement JobAbandoned.
func (r *Registry) EmitJobAbandoned(ctx context.Context, e *job.Envelope, reason string) {
	emit(r, &r.jobAbandoned, "OnJobAbandoned", func(h JobAbandoned) error {
		return h.OnJobAbandoned(ctx, e, reason)
	})
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, e *job.Envelope) {
	emit(r, &r.jobCancelled, "OnJobCancelled", func(h JobCancelled) error {
		return h.OnJobCancelled(ctx, e)
	})
}

// EmitJobRequeued notifies all extensions that implement JobRequeued.
func (r *Registry) EmitJobRequeued(ctx context.Context, e *job.Envelope) {
	emit(r, &r.jobRequeued, "OnJobRequeued", func(h JobRequeued) error {
		return h.OnJobRequeued(ctx, e)
	})
}

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) {
	emit(r, &r.scheduleFired, "OnScheduleFired", func(h ScheduleFired) error {
		return h.OnScheduleFired(ctx, scheduleID, jobID)
	})
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, &r.shutdown, "OnShutdown", func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}

func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

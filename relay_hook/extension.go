package relayhook

import (
	"context"
	"time"

	"github.com/xraph/relay"
	"github.com/xraph/relay/event"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobEnqueued     = (*Extension)(nil)
	_ ext.JobStarted      = (*Extension)(nil)
	_ ext.JobCompleted    = (*Extension)(nil)
	_ ext.JobRetrying     = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.JobAbandoned    = (*Extension)(nil)
	_ ext.JobCancelled    = (*Extension)(nil)
	_ ext.JobRequeued     = (*Extension)(nil)
	_ ext.ScheduleFired   = (*Extension)(nil)
)

// Extension bridges Conductor lifecycle events to Relay. Each lifecycle
// hook emits a typed event via [relay.Relay.Send].
type Extension struct {
	relay    *relay.Relay
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that emits lifecycle events through r.
func New(r *relay.Relay, opts ...Option) *Extension {
	h := &Extension{relay: r}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (h *Extension) OnJobEnqueued(ctx context.Context, j *job.Envelope) error {
	return h.send(ctx, EventJobEnqueued, j.WorkspaceID, newJobPayload(j))
}

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(ctx context.Context, j *job.Envelope) error {
	return h.send(ctx, EventJobStarted, j.WorkspaceID, newJobPayload(j))
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Extension) OnJobCompleted(ctx context.Context, j *job.Envelope, elapsed time.Duration) error {
	return h.send(ctx, EventJobCompleted, j.WorkspaceID, &jobCompletedPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Extension) OnJobRetrying(ctx context.Context, j *job.Envelope, attempt int, nextRunAt time.Time) error {
	return h.send(ctx, EventJobRetrying, j.WorkspaceID, &jobRetryingPayload{
		jobPayload: *newJobPayload(j),
		Attempt:    attempt,
		NextRunAt:  nextRunAt.Format(time.RFC3339),
	})
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (h *Extension) OnJobDeadLettered(ctx context.Context, j *job.Envelope, jobErr error) error {
	return h.send(ctx, EventJobDeadLettered, j.WorkspaceID, &jobFailedPayload{
		jobPayload: *newJobPayload(j),
		Error:      jobErr.Error(),
	})
}

// OnJobAbandoned implements ext.JobAbandoned.
func (h *Extension) OnJobAbandoned(ctx context.Context, j *job.Envelope, reason string) error {
	return h.send(ctx, EventJobAbandoned, j.WorkspaceID, &jobFailedPayload{
		jobPayload: *newJobPayload(j),
		Error:      reason,
	})
}

// OnJobCancelled implements ext.JobCancelled.
func (h *Extension) OnJobCancelled(ctx context.Context, j *job.Envelope) error {
	return h.send(ctx, EventJobCancelled, j.WorkspaceID, newJobPayload(j))
}

// OnJobRequeued implements ext.JobRequeued.
func (h *Extension) OnJobRequeued(ctx context.Context, j *job.Envelope) error {
	return h.send(ctx, EventJobRequeued, j.WorkspaceID, newJobPayload(j))
}

// OnScheduleFired implements ext.ScheduleFired. Schedule events carry no
// tenant; the fired job's own enqueued event does.
func (h *Extension) OnScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	return h.send(ctx, EventScheduleFired, "", &schedulePayload{
		ScheduleID: scheduleID.String(),
		JobID:      jobID.String(),
	})
}

// send emits an event through Relay if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType, tenantID string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	return h.relay.Send(ctx, &event.Event{
		Type:     eventType,
		TenantID: tenantID,
		Data:     data,
	})
}

type jobPayload struct {
	JobID        string `json:"job_id"`
	JobName      string `json:"job_name"`
	JobType      string `json:"job_type"`
	WorkspaceID  string `json:"workspace_id"`
	Status       string `json:"status"`
	AttemptsMade int    `json:"attempts_made"`
}

func newJobPayload(j *job.Envelope) *jobPayload {
	return &jobPayload{
		JobID:        j.ID.String(),
		JobName:      j.Name,
		JobType:      j.Type.String(),
		WorkspaceID:  j.WorkspaceID,
		Status:       string(j.Status),
		AttemptsMade: j.AttemptsMade,
	}
}

type jobCompletedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobFailedPayload struct {
	jobPayload
	Error string `json:"error"`
}

type jobRetryingPayload struct {
	jobPayload
	Attempt   int    `json:"attempt"`
	NextRunAt string `json:"next_run_at"`
}

type schedulePayload struct {
	ScheduleID string `json:"schedule_id"`
	JobID      string `json:"job_id"`
}

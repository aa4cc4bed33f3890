package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

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

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID  string         `json:"resource_id,omitempty"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Outcome     string         `json:"outcome"`
	Severity    string         `json:"severity"`
	Reason      string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to l, one structured record per event.
func LogRecorder(l *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		l.LogAttrs(ctx, level, "audit",
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("workspace_id", evt.WorkspaceID),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Conductor lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Envelope) error {
	return e.recordJob(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess, j, nil,
		"status", string(j.Status),
		"priority", j.Priority,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Envelope) error {
	return e.recordJob(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j, nil,
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Envelope, elapsed time.Duration) error {
	return e.recordJob(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j, nil,
		"attempts_made", j.AttemptsMade,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Envelope, attempt int, nextRunAt time.Time) error {
	return e.recordJob(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure, j, nil,
		"attempt", attempt,
		"max_attempts", j.Retry.MaxAttempts,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, j *job.Envelope, jobErr error) error {
	return e.recordJob(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure, j, jobErr,
		"attempts_made", j.AttemptsMade,
	)
}

// OnJobAbandoned implements ext.JobAbandoned.
func (e *Extension) OnJobAbandoned(ctx context.Context, j *job.Envelope, reason string) error {
	return e.recordJob(ctx, ActionJobAbandoned, SeverityWarning, OutcomeFailure, j, errors.New(reason))
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, j *job.Envelope) error {
	return e.recordJob(ctx, ActionJobCancelled, SeverityWarning, OutcomeSuccess, j, nil)
}

// OnJobRequeued implements ext.JobRequeued.
func (e *Extension) OnJobRequeued(ctx context.Context, j *job.Envelope) error {
	return e.recordJob(ctx, ActionJobRequeued, SeverityInfo, OutcomeSuccess, j, nil,
		"attempts_made", j.AttemptsMade,
	)
}

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionScheduleFired,
		Resource:   ResourceSchedule,
		Category:   CategorySchedule,
		ResourceID: scheduleID.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	}, nil, "job_id", jobID.String())
}

func (e *Extension) recordJob(
	ctx context.Context,
	action, severity, outcome string,
	j *job.Envelope,
	err error,
	kvPairs ...any,
) error {
	kvPairs = append(kvPairs,
		"job_name", j.Name,
		"job_type", j.Type.String(),
		"created_by", j.CreatedBy,
	)
	return e.record(ctx, &AuditEvent{
		Action:      action,
		Resource:    ResourceJob,
		Category:    CategoryJob,
		ResourceID:  j.ID.String(),
		WorkspaceID: j.WorkspaceID,
		Outcome:     outcome,
		Severity:    severity,
	}, err, kvPairs...)
}

// record fills metadata and sends evt if its action is enabled. Recorder
// failures are logged, never returned.
func (e *Extension) record(ctx context.Context, evt *AuditEvent, err error, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}

	evt.Metadata = make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		evt.Metadata[key] = kvPairs[i+1]
	}
	if err != nil {
		evt.Reason = err.Error()
		evt.Metadata["error"] = err.Error()
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/access"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/cron"
	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/priority"
	"github.com/xraph/conductor/retry"
)

// Scheduler registers recurring schedules. cron.Scheduler implements it.
type Scheduler interface {
	Add(e *cron.Entry) error
	Get(scheduleID id.ScheduleID) (*cron.Entry, bool)
	Remove(scheduleID id.ScheduleID) bool
}

// Manager implements the job lifecycle operations. It is safe for
// concurrent use.
type Manager struct {
	store      job.Store
	guard      access.Guard
	quotas     QuotaProvider
	scheduler  Scheduler
	extensions *ext.Registry
	retry      *retry.Engine
	notify     func(jobtype.Type)
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(m *Manager) { m.extensions = r }
}

// WithQuotaProvider enables per-workspace quotas.
func WithQuotaProvider(q QuotaProvider) Option {
	return func(m *Manager) { m.quotas = q }
}

// WithScheduler enables recurring schedules.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithNotifier is called after every enqueue so the type's worker pool
// can wake early.
func WithNotifier(fn func(jobtype.Type)) Option {
	return func(m *Manager) { m.notify = fn }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager over store. A nil guard uses the default
// capability table.
func New(store job.Store, guard access.Guard, opts ...Option) *Manager {
	if guard == nil {
		guard = access.NewGuard(nil)
	}
	m := &Manager{
		store:  store,
		guard:  guard,
		retry:  retry.New(),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.extensions == nil {
		m.extensions = ext.NewRegistry(m.logger)
	}
	return m
}

// CreateJob validates req, authorizes the caller, resolves priority and
// retry policy and enqueues the envelope.
func (m *Manager) CreateJob(ctx context.Context, req CreateRequest, u access.User) (*JobView, error) {
	e, err := m.build(req, u)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(ctx, m.guard, u, access.ActionCreate, access.Resource{WorkspaceID: e.WorkspaceID}); err != nil {
		return nil, err
	}
	if err := m.applyQuota(ctx, e); err != nil {
		return nil, err
	}

	var entry *cron.Entry
	if req.Schedule != nil {
		if entry, err = m.planSchedule(e, req.Schedule); err != nil {
			return nil, err
		}
	}

	if err := m.Enqueue(ctx, e); err != nil {
		return nil, err
	}

	if entry != nil {
		if addErr := m.scheduler.Add(entry); addErr != nil {
			m.logger.Error("failed to register schedule",
				slog.String("job_id", e.ID.String()),
				slog.String("schedule_id", entry.ID.String()),
				slog.String("error", addErr.Error()),
			)
		}
	}

	m.logger.Info("job created",
		slog.String("job_id", e.ID.String()),
		slog.String("job_type", e.Type.String()),
		slog.String("workspace_id", e.WorkspaceID),
		slog.Int("priority", e.Priority),
		slog.String("status", string(e.Status)),
	)
	return m.view(ctx, e, u), nil
}

// EnqueueScheduled admits one occurrence of a recurring schedule. The
// occurrence is subject to the workspace quota like a direct create; an
// occurrence over quota is not stored.
func (m *Manager) EnqueueScheduled(ctx context.Context, e *job.Envelope) error {
	if err := m.applyQuota(ctx, e); err != nil {
		return err
	}
	return m.Enqueue(ctx, e)
}

// Enqueue stores a fully built envelope and wakes its pool. No quota is
// checked.
func (m *Manager) Enqueue(ctx context.Context, e *job.Envelope) error {
	if err := m.store.Enqueue(ctx, e); err != nil {
		return fmt.Errorf("enqueue job %s: %w", e.ID, err)
	}
	m.extensions.EmitJobEnqueued(ctx, e)
	if m.notify != nil {
		m.notify(e.Type)
	}
	return nil
}

// GetJob returns the envelope with jobID if the caller may read it.
func (m *Manager) GetJob(ctx context.Context, jobID string, u access.User) (*JobView, error) {
	e, err := m.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(ctx, m.guard, u, access.ActionRead, resourceOf(e)); err != nil {
		return nil, err
	}
	return m.view(ctx, e, u), nil
}

// CancelJob removes a waiting or delayed job from its queue. Cancelling
// an occurrence of a recurring schedule also stops the schedule.
func (m *Manager) CancelJob(ctx context.Context, jobID string, u access.User) (*ActionResult, error) {
	e, err := m.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(ctx, m.guard, u, access.ActionCancel, resourceOf(e)); err != nil {
		return nil, err
	}
	if !retry.CanCancel(e) {
		return nil, fmt.Errorf("%w: cannot cancel %s job %s", conductor.ErrIllegalState, e.Status, e.ID)
	}

	cancelled, err := m.store.Cancel(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	m.extensions.EmitJobCancelled(ctx, cancelled)
	m.logger.Info("job cancelled",
		slog.String("job_id", cancelled.ID.String()),
		slog.String("workspace_id", cancelled.WorkspaceID),
		slog.String("user_id", u.ID),
	)
	if cancelled.Schedule != nil {
		m.removeSchedule(cancelled.Schedule.ID, u)
	}
	return &ActionResult{
		JobID:             cancelled.ID.String(),
		Success:           true,
		Status:            cancelled.Status,
		AttemptsRemaining: cancelled.AttemptsRemaining(),
	}, nil
}

// CancelSchedule stops a recurring schedule so no further occurrences
// are enqueued. Occurrences already queued are left alone. The caller
// needs cancel permission on the job the schedule was created from.
func (m *Manager) CancelSchedule(ctx context.Context, scheduleID string, u access.User) error {
	if m.scheduler == nil {
		return fmt.Errorf("%w: schedule %q", conductor.ErrNotFound, scheduleID)
	}
	parsed, err := id.ParseScheduleID(scheduleID)
	if err != nil {
		return fmt.Errorf("%w: schedule %q", conductor.ErrNotFound, scheduleID)
	}
	entry, ok := m.scheduler.Get(parsed)
	if !ok {
		return fmt.Errorf("%w: schedule %s", conductor.ErrNotFound, scheduleID)
	}
	if err := access.Authorize(ctx, m.guard, u, access.ActionCancel, resourceOf(entry.Template)); err != nil {
		return err
	}
	if !m.removeSchedule(parsed, u) {
		return fmt.Errorf("%w: schedule %s", conductor.ErrNotFound, scheduleID)
	}
	return nil
}

func (m *Manager) removeSchedule(scheduleID id.ScheduleID, u access.User) bool {
	if m.scheduler == nil || !m.scheduler.Remove(scheduleID) {
		return false
	}
	m.logger.Info("schedule removed",
		slog.String("schedule_id", scheduleID.String()),
		slog.String("user_id", u.ID),
	)
	return true
}

// RetryJob puts a failed or dead-lettered job with attempts remaining
// back in its queue. AttemptsMade is kept.
func (m *Manager) RetryJob(ctx context.Context, jobID string, u access.User) (*ActionResult, error) {
	e, err := m.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(ctx, m.guard, u, access.ActionRetry, resourceOf(e)); err != nil {
		return nil, err
	}
	if err := m.retry.ManualRetry(e, m.now()); err != nil {
		return nil, err
	}
	if err := m.store.Requeue(ctx, e); err != nil {
		return nil, err
	}
	m.extensions.EmitJobRequeued(ctx, e)
	if m.notify != nil {
		m.notify(e.Type)
	}
	m.logger.Info("job retried",
		slog.String("job_id", e.ID.String()),
		slog.String("workspace_id", e.WorkspaceID),
		slog.String("user_id", u.ID),
		slog.Int("attempts_made", e.AttemptsMade),
	)
	return &ActionResult{
		JobID:             e.ID.String(),
		Success:           true,
		Status:            e.Status,
		AttemptsRemaining: e.AttemptsRemaining(),
	}, nil
}

// build validates the request and produces an unsaved envelope.
func (m *Manager) build(req CreateRequest, u access.User) (*job.Envelope, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if req.Type == "" {
		return nil, invalid("type is required")
	}
	t, err := jobtype.Parse(req.Type)
	if err != nil {
		return nil, err
	}
	if req.WorkspaceID == "" {
		return nil, invalid("workspace_id is required")
	}
	payload := bytes.TrimSpace(req.Payload)
	if len(payload) == 0 || string(payload) == "null" {
		return nil, invalid("payload is required")
	}
	if payload[0] != '{' {
		return nil, invalid("payload must be a JSON object")
	}

	spec := jobtype.MustLookup(t)
	opts := req.Options
	if opts == nil {
		opts = &Options{}
	}

	level, err := priority.ParseLevel(opts.Priority)
	if err != nil {
		return nil, invalid(err.Error())
	}

	policy := job.RetryPolicy{Backoff: spec.Backoff, MaxAttempts: spec.MaxAttempts}
	switch {
	case opts.Attempts < 0:
		return nil, invalid("attempts must be at least 1")
	case opts.Attempts > 0:
		policy.MaxAttempts = opts.Attempts
	}
	if b := opts.Backoff; b != nil {
		if b.Type != "" {
			bt, err := backoff.ParseType(b.Type)
			if err != nil {
				return nil, invalid(err.Error())
			}
			if bt != policy.Backoff.Type {
				policy.Backoff = backoff.Policy{Type: bt, BaseDelay: policy.Backoff.BaseDelay}
			}
		}
		if b.DelayMs < 0 || b.MaxDelayMs < 0 {
			return nil, invalid("backoff delays must not be negative")
		}
		if b.DelayMs > 0 {
			policy.Backoff.BaseDelay = millis(b.DelayMs)
		}
		if b.MaxDelayMs > 0 {
			policy.Backoff.MaxDelay = millis(b.MaxDelayMs)
		}
	}
	if opts.DelayMs < 0 || opts.TimeoutMs < 0 {
		return nil, invalid("delay and timeout must not be negative")
	}
	delay, timeout := millis(opts.DelayMs), millis(opts.TimeoutMs)

	now := m.now()
	e := &job.Envelope{
		Entity:        conductor.Entity{CreatedAt: now, UpdatedAt: now},
		ID:            id.NewJobID(),
		Type:          t,
		WorkspaceID:   req.WorkspaceID,
		CreatedBy:     u.ID,
		CreatedByName: u.Name,
		Name:          name,
		Payload:       append([]byte(nil), req.Payload...),
		Metadata:      req.Metadata,
		Priority:      priority.Resolve(level),
		Retry:         policy,
		Delay:         delay,
		Timeout:       timeout,
		Status:        job.StatusWaiting,
		RunAt:         now,
	}
	if delay > 0 {
		e.Status = job.StatusDelayed
		e.RunAt = now.Add(delay)
	}
	return e, nil
}

// applyQuota clamps priority to the workspace tier and rejects the job
// when the workspace already has MaxQueuedJobs waiting or delayed.
func (m *Manager) applyQuota(ctx context.Context, e *job.Envelope) error {
	if m.quotas == nil {
		return nil
	}
	q, err := m.quotas.Quota(ctx, e.WorkspaceID)
	if err != nil {
		return fmt.Errorf("resolve quota for workspace %s: %w", e.WorkspaceID, err)
	}
	e.Priority = priority.Clamp(e.Priority, q.PriorityTier)
	if q.MaxQueuedJobs <= 0 {
		return nil
	}

	existing, err := m.store.List(ctx, job.Filter{WorkspaceID: e.WorkspaceID})
	if err != nil {
		return err
	}
	queued := 0
	for _, x := range existing {
		if x.Status.Queued() {
			queued++
		}
	}
	if queued >= q.MaxQueuedJobs {
		return fmt.Errorf("%w: workspace %s has %d queued jobs (max %d)",
			conductor.ErrQuotaExceeded, e.WorkspaceID, queued, q.MaxQueuedJobs)
	}
	return nil
}

// planSchedule turns e into the first occurrence of a recurring schedule
// and returns the entry that produces the following ones, or nil when
// the window holds a single trigger.
func (m *Manager) planSchedule(e *job.Envelope, req *ScheduleRequest) (*cron.Entry, error) {
	if m.scheduler == nil {
		return nil, invalid("recurring schedules are not enabled")
	}
	if req.Type != "" && req.Type != "cron" {
		return nil, invalid(fmt.Sprintf("unsupported schedule type %q", req.Type))
	}
	if err := cron.Validate(req.Pattern, req.Timezone, req.StartAt, req.EndAt); err != nil {
		return nil, err
	}

	after := m.now().Add(e.Delay)
	first, ok, err := cron.Next(req.Pattern, req.Timezone, after, req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("schedule has no trigger inside its window")
	}

	e.Schedule = &job.Schedule{
		ID:       id.NewScheduleID(),
		Pattern:  req.Pattern,
		Timezone: req.Timezone,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
	}
	e.Status = job.StatusDelayed
	e.RunAt = first

	next, ok, err := cron.Next(req.Pattern, req.Timezone, first, req.StartAt, req.EndAt)
	if err != nil || !ok {
		return nil, err
	}
	return &cron.Entry{
		ID:        e.Schedule.ID,
		Pattern:   req.Pattern,
		Timezone:  req.Timezone,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Template:  e.Clone(),
		NextRunAt: next,
	}, nil
}

// load resolves a job ID string. Malformed IDs are reported as not found.
func (m *Manager) load(ctx context.Context, jobID string) (*job.Envelope, error) {
	parsed, err := id.ParseJobID(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", conductor.ErrNotFound, jobID)
	}
	e, err := m.store.Get(ctx, parsed)
	if err != nil {
		if errors.Is(err, conductor.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", conductor.ErrNotFound, jobID)
		}
		return nil, err
	}
	return e, nil
}

// view annotates e with the caller's capabilities. The workspace check
// has already passed.
func (m *Manager) view(ctx context.Context, e *job.Envelope, u access.User) *JobView {
	res := resourceOf(e)
	v := &JobView{
		ID:                e.ID,
		Name:              e.Name,
		Type:              e.Type,
		WorkspaceID:       e.WorkspaceID,
		CreatedBy:         e.CreatedBy,
		CreatedByName:     e.CreatedByName,
		Status:            e.Status,
		Priority:          e.Priority,
		AttemptsMade:      e.AttemptsMade,
		MaxAttempts:       e.Retry.MaxAttempts,
		AttemptsRemaining: e.AttemptsRemaining(),
		Backoff:           e.Retry.Backoff,
		LastError:         e.LastError,
		Metadata:          e.Metadata,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		ProcessedAt:       e.ProcessedAt,
		FinishedAt:        e.FinishedAt,
		Schedule:          e.Schedule,
		CanRead:           m.guard.CheckResourcePermission(ctx, u, access.ActionRead, res),
		CanCancel:         retry.CanCancel(e) && m.guard.CheckResourcePermission(ctx, u, access.ActionCancel, res),
		CanRetry:          retry.CanRetry(e) && m.guard.CheckResourcePermission(ctx, u, access.ActionRetry, res),
	}
	v.NextRunAt = m.nextRunAt(e)
	return v
}

func (m *Manager) nextRunAt(e *job.Envelope) *time.Time {
	switch {
	case e.Status.Queued():
		t := e.RunAt
		return &t
	case e.Schedule != nil && m.scheduler != nil:
		if entry, ok := m.scheduler.Get(e.Schedule.ID); ok {
			t := entry.NextRunAt
			return &t
		}
	}
	return nil
}

func resourceOf(e *job.Envelope) access.Resource {
	return access.Resource{WorkspaceID: e.WorkspaceID, CreatedBy: e.CreatedBy}
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", conductor.ErrValidation, msg)
}

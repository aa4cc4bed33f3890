package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// EnqueueFunc is the callback the scheduler uses to enqueue triggered
// envelopes. The lifecycle manager provides the implementation.
type EnqueueFunc func(ctx context.Context, e *job.Envelope) error

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock sets the time source used to decide which entries are due.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler fires registered entries on a tick loop. Entries live in
// process memory.
type Scheduler struct {
	enqueue EnqueueFunc
	emitter Emitter
	logger  *slog.Logger

	tickInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a Scheduler.
func NewScheduler(enqueue EnqueueFunc, emitter Emitter, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		enqueue:      enqueue,
		emitter:      emitter,
		logger:       logger,
		tickInterval: time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		entries:      make(map[string]*Entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers an entry. A zero NextRunAt is computed from the current
// time. The template must carry a job type and workspace.
func (s *Scheduler) Add(e *Entry) error {
	if e.Template == nil {
		return fmt.Errorf("%w: schedule has no template", conductor.ErrValidation)
	}
	if err := Validate(e.Pattern, e.Timezone, e.StartAt, e.EndAt); err != nil {
		return err
	}
	entry := e.clone()
	if entry.ID.IsNil() {
		entry.ID = id.NewScheduleID()
	}
	if entry.NextRunAt.IsZero() {
		next, ok, err := Next(entry.Pattern, entry.Timezone, s.now(), entry.StartAt, entry.EndAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: schedule %s has no trigger inside its window", conductor.ErrValidation, entry.ID)
		}
		entry.NextRunAt = next
	}

	s.mu.Lock()
	s.entries[entry.ID.String()] = entry
	s.mu.Unlock()

	e.ID = entry.ID
	e.NextRunAt = entry.NextRunAt
	s.logger.Debug("schedule registered",
		slog.String("schedule_id", entry.ID.String()),
		slog.String("pattern", entry.Pattern),
		slog.Time("next_run_at", entry.NextRunAt),
	)
	return nil
}

// Remove unregisters an entry and reports whether it existed.
func (s *Scheduler) Remove(scheduleID id.ScheduleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scheduleID.String()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Get returns a copy of an entry.
func (s *Scheduler) Get(scheduleID id.ScheduleID) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[scheduleID.String()]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Entries returns copies of every entry ordered by next trigger.
func (s *Scheduler) Entries() []*Entry {
	s.mu.Lock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return out
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunDue(context.Background())
		}
	}
}

// RunDue fires every entry whose NextRunAt has passed and returns how
// many envelopes were enqueued.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*Entry
	for _, e := range s.entries {
		if !e.NextRunAt.After(now) {
			due = append(due, e.clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })

	fired := 0
	for _, e := range due {
		if s.fire(ctx, e, now) {
			fired++
		}
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) bool {
	env := newOccurrence(e.Template, now)
	env.Schedule = &job.Schedule{
		ID:       e.ID,
		Pattern:  e.Pattern,
		Timezone: e.Timezone,
		StartAt:  e.StartAt,
		EndAt:    e.EndAt,
	}

	enqErr := s.enqueue(ctx, env)
	switch {
	case errors.Is(enqErr, conductor.ErrQuotaExceeded):
		s.logger.Warn("schedule occurrence skipped",
			slog.String("schedule_id", e.ID.String()),
			slog.String("workspace_id", env.WorkspaceID),
			slog.String("error", enqErr.Error()),
		)
	case enqErr != nil:
		s.logger.Error("schedule enqueue error",
			slog.String("schedule_id", e.ID.String()),
			slog.String("job_type", env.Type.String()),
			slog.String("error", enqErr.Error()),
		)
	}

	next, ok, err := Next(e.Pattern, e.Timezone, now, e.StartAt, e.EndAt)
	if err != nil {
		// Patterns are validated on Add.
		ok = false
	}

	s.mu.Lock()
	stored, exists := s.entries[e.ID.String()]
	if exists {
		if !ok {
			delete(s.entries, e.ID.String())
		} else {
			stored.NextRunAt = next
			if enqErr == nil {
				stored.LastRunAt = &now
				stored.Fired++
			}
		}
	}
	s.mu.Unlock()

	if !ok && exists {
		s.logger.Info("schedule window closed",
			slog.String("schedule_id", e.ID.String()),
		)
	}

	if enqErr != nil {
		return false
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, e.ID, env.ID)
	}
	s.logger.Info("schedule fired",
		slog.String("schedule_id", e.ID.String()),
		slog.String("job_type", env.Type.String()),
		slog.String("job_id", env.ID.String()),
	)
	return true
}

// newOccurrence copies a template into a fresh waiting envelope.
func newOccurrence(tmpl *job.Envelope, now time.Time) *job.Envelope {
	env := tmpl.Clone()
	env.Entity = conductor.Entity{CreatedAt: now, UpdatedAt: now}
	env.ID = id.NewJobID()
	env.Status = job.StatusWaiting
	env.RunAt = now
	env.AttemptsMade = 0
	env.LastError = ""
	env.WorkerID = id.Nil
	env.ProcessedAt = nil
	env.FinishedAt = nil
	env.HeartbeatAt = nil
	env.Delay = 0
	return env
}

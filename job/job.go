package job

import (
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/jobtype"
)

// Status represents the lifecycle state of an envelope.
type Status string

const (
	// StatusWaiting means the envelope is ready and ordered by priority.
	StatusWaiting Status = "waiting"
	// StatusDelayed means the envelope becomes ready at RunAt.
	StatusDelayed Status = "delayed"
	// StatusActive means a worker is executing an attempt.
	StatusActive Status = "active"
	// StatusCompleted means an attempt succeeded.
	StatusCompleted Status = "completed"
	// StatusFailed means an attempt was abandoned without a handler verdict.
	// It can be retried manually while attempts remain.
	StatusFailed Status = "failed"
	// StatusDeadLetter means retries were exhausted or the failure was
	// permanent.
	StatusDeadLetter Status = "dead-letter"
	// StatusCancelled means the envelope was removed before execution.
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status.
var Statuses = []Status{
	StatusWaiting, StatusDelayed, StatusActive, StatusCompleted,
	StatusFailed, StatusDeadLetter, StatusCancelled,
}

// Queued reports whether s is waiting or delayed.
func (s Status) Queued() bool {
	return s == StatusWaiting || s == StatusDelayed
}

// Terminal reports whether s can no longer change without manual action.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeadLetter || s == StatusCancelled
}

// RetryPolicy bounds how often and how fast an envelope is re-attempted.
type RetryPolicy struct {
	Backoff     backoff.Policy `json:"backoff"`
	MaxAttempts int            `json:"max_attempts"`
}

// Schedule describes a recurring trigger that produces new envelopes.
type Schedule struct {
	ID       id.ScheduleID `json:"id"`
	Pattern  string        `json:"pattern"`
	Timezone string        `json:"timezone"`
	StartAt  *time.Time    `json:"start_at,omitempty"`
	EndAt    *time.Time    `json:"end_at,omitempty"`
}

// Envelope is the unit of work scheduled and tracked by Conductor.
type Envelope struct {
	conductor.Entity

	ID            id.JobID          `json:"id"`
	Type          jobtype.Type      `json:"type"`
	WorkspaceID   string            `json:"workspace_id"`
	CreatedBy     string            `json:"created_by"`
	CreatedByName string            `json:"created_by_name,omitempty"`
	Name          string            `json:"name"`
	Payload       []byte            `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	Priority     int         `json:"priority"`
	AttemptsMade int         `json:"attempts_made"`
	Retry        RetryPolicy `json:"retry"`

	// Delay is the initial scheduling delay requested at creation.
	Delay time.Duration `json:"delay,omitempty"`
	// Timeout is the per-attempt deadline. Zero means none.
	Timeout time.Duration `json:"timeout,omitempty"`

	Status    Status      `json:"status"`
	LastError string      `json:"last_error,omitempty"`
	RunAt     time.Time   `json:"run_at"`
	WorkerID  id.WorkerID `json:"worker_id,omitempty"`
	Schedule  *Schedule   `json:"schedule,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
}

// MaxAttempts is shorthand for e.Retry.MaxAttempts.
func (e *Envelope) MaxAttempts() int { return e.Retry.MaxAttempts }

// AttemptsRemaining returns how many attempts the envelope may still make.
func (e *Envelope) AttemptsRemaining() int {
	if n := e.Retry.MaxAttempts - e.AttemptsMade; n > 0 {
		return n
	}
	return 0
}

// Clone returns a deep copy so stores never share mutable state with
// callers.
func (e *Envelope) Clone() *Envelope {
	cp := *e
	if e.Payload != nil {
		cp.Payload = append([]byte(nil), e.Payload...)
	}
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.Schedule != nil {
		s := *e.Schedule
		cp.Schedule = &s
	}
	cp.ProcessedAt = cloneTime(e.ProcessedAt)
	cp.FinishedAt = cloneTime(e.FinishedAt)
	cp.HeartbeatAt = cloneTime(e.HeartbeatAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// QueueCounts is a per-type snapshot used for health reasoning only. It is
// not authoritative job state. Failed counts both failed and dead-letter.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Add accumulates a status into the counts. Cancelled envelopes are not
// counted.
func (c *QueueCounts) Add(s Status) { c.AddN(s, 1) }

// AddN accumulates n envelopes of status s.
func (c *QueueCounts) AddN(s Status, n int64) {
	switch s {
	case StatusWaiting:
		c.Waiting += n
	case StatusDelayed:
		c.Delayed += n
	case StatusActive:
		c.Active += n
	case StatusCompleted:
		c.Completed += n
	case StatusFailed, StatusDeadLetter:
		c.Failed += n
	case StatusCancelled:
	}
}

// Merge adds other into c.
func (c *QueueCounts) Merge(other QueueCounts) {
	c.Waiting += other.Waiting
	c.Active += other.Active
	c.Completed += other.Completed
	c.Failed += other.Failed
	c.Delayed += other.Delayed
}

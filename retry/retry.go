// Package retry is the retry and backoff policy engine. It owns every
// status transition that follows an attempt and the legality rules for
// manual retries. It never touches a store: callers persist the envelope
// after applying a decision.
package retry

import (
	"fmt"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// Action is the outcome of an attempt as decided by the engine.
type Action string

const (
	ActionComplete   Action = "complete"
	ActionRetry      Action = "retry"
	ActionDeadLetter Action = "dead-letter"
	ActionAbandon    Action = "abandon"
)

// Decision describes the transition applied to an envelope.
type Decision struct {
	Action    Action
	Status    job.Status
	Delay     time.Duration
	NextRunAt time.Time
	Permanent bool
}

// Engine applies attempt outcomes to envelopes.
type Engine struct{}

// New returns a retry engine.
func New() *Engine { return &Engine{} }

// OnSuccess marks the envelope completed.
func (*Engine) OnSuccess(e *job.Envelope, now time.Time) Decision {
	e.Status = job.StatusCompleted
	e.LastError = ""
	e.FinishedAt = &now
	e.UpdatedAt = now
	return Decision{Action: ActionComplete, Status: job.StatusCompleted}
}

// OnFailure records a failed attempt. Transient failures with attempts
// left are rescheduled as delayed; permanent failures and exhausted
// envelopes move to dead-letter.
//
// The delay uses the number of attempts made before the failing one, so
// the first retry waits exactly the base delay.
func (*Engine) OnFailure(e *job.Envelope, cause error, now time.Time) Decision {
	if e.AttemptsMade < e.Retry.MaxAttempts {
		e.AttemptsMade++
	}
	e.LastError = errorText(cause)
	e.UpdatedAt = now

	permanent := conductor.IsPermanent(cause)
	if !permanent && e.AttemptsMade < e.Retry.MaxAttempts {
		delay := e.Retry.Backoff.Delay(e.AttemptsMade - 1)
		e.Status = job.StatusDelayed
		e.RunAt = now.Add(delay)
		e.WorkerID = id.Nil
		return Decision{
			Action:    ActionRetry,
			Status:    job.StatusDelayed,
			Delay:     delay,
			NextRunAt: e.RunAt,
		}
	}

	e.Status = job.StatusDeadLetter
	e.FinishedAt = &now
	return Decision{Action: ActionDeadLetter, Status: job.StatusDeadLetter, Permanent: permanent}
}

// OnAbandon records an attempt that ended without a handler verdict, for
// example a worker that stopped heartbeating. The attempt counts against
// the budget and the envelope waits in failed for an operator.
func (*Engine) OnAbandon(e *job.Envelope, reason string, now time.Time) Decision {
	if e.AttemptsMade < e.Retry.MaxAttempts {
		e.AttemptsMade++
	}
	e.LastError = reason
	e.Status = job.StatusFailed
	e.UpdatedAt = now
	e.FinishedAt = &now
	return Decision{Action: ActionAbandon, Status: job.StatusFailed}
}

// CanRetry reports whether a manual retry is legal for e.
func CanRetry(e *job.Envelope) bool {
	switch e.Status {
	case job.StatusFailed, job.StatusDeadLetter:
		return e.AttemptsMade < e.Retry.MaxAttempts
	default:
		return false
	}
}

// CanCancel reports whether cancellation is legal for e.
func CanCancel(e *job.Envelope) bool {
	return e.Status.Queued()
}

// ManualRetry resets a failed envelope to waiting without touching its
// attempt count. It wraps conductor.ErrIllegalState when not retryable.
func (*Engine) ManualRetry(e *job.Envelope, now time.Time) error {
	if !CanRetry(e) {
		return fmt.Errorf("%w: job %s is %s with %d/%d attempts",
			conductor.ErrIllegalState, e.ID, e.Status, e.AttemptsMade, e.Retry.MaxAttempts)
	}
	e.Status = job.StatusWaiting
	e.LastError = ""
	e.FinishedAt = nil
	e.ProcessedAt = nil
	e.HeartbeatAt = nil
	e.RunAt = now
	e.UpdatedAt = now
	return nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}

package retry_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/retry"
)

func newEnvelope(maxAttempts int, bo backoff.Policy) *job.Envelope {
	return &job.Envelope{
		ID:     id.NewJobID(),
		Status: job.StatusActive,
		Retry:  job.RetryPolicy{Backoff: bo, MaxAttempts: maxAttempts},
	}
}

var exp1s = backoff.Policy{Type: backoff.TypeExponential, BaseDelay: time.Second}

func TestOnSuccess(t *testing.T) {
	e := newEnvelope(3, exp1s)
	now := time.Now().UTC()

	d := retry.New().OnSuccess(e, now)
	if d.Action != retry.ActionComplete || e.Status != job.StatusCompleted {
		t.Fatalf("decision = %+v, status = %s", d, e.Status)
	}
	if e.FinishedAt == nil || !e.FinishedAt.Equal(now) {
		t.Error("FinishedAt not set")
	}
}

func TestOnFailure_TransientSchedulesBackoff(t *testing.T) {
	eng := retry.New()
	e := newEnvelope(4, exp1s)
	now := time.Now().UTC()

	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range wantDelays {
		e.Status = job.StatusActive
		d := eng.OnFailure(e, errors.New("connection reset"), now)
		if d.Action != retry.ActionRetry {
			t.Fatalf("attempt %d: action = %s, want retry", i+1, d.Action)
		}
		if d.Delay != want {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, d.Delay, want)
		}
		if e.Status != job.StatusDelayed || !e.RunAt.Equal(now.Add(want)) {
			t.Errorf("attempt %d: status=%s runAt=%v", i+1, e.Status, e.RunAt)
		}
		if e.AttemptsMade != i+1 {
			t.Errorf("attempt %d: AttemptsMade = %d", i+1, e.AttemptsMade)
		}
	}

	// Fourth failure exhausts the budget.
	e.Status = job.StatusActive
	d := eng.OnFailure(e, errors.New("connection reset"), now)
	if d.Action != retry.ActionDeadLetter || e.Status != job.StatusDeadLetter {
		t.Fatalf("exhausted: action=%s status=%s", d.Action, e.Status)
	}
	if e.AttemptsMade != e.MaxAttempts() {
		t.Errorf("AttemptsMade = %d, want %d", e.AttemptsMade, e.MaxAttempts())
	}
	if e.LastError != "connection reset" {
		t.Errorf("LastError = %q", e.LastError)
	}
}

func TestOnFailure_PermanentGoesToDeadLetter(t *testing.T) {
	e := newEnvelope(5, exp1s)
	d := retry.New().OnFailure(e, conductor.Permanent(errors.New("invalid url")), time.Now())
	if d.Action != retry.ActionDeadLetter || !d.Permanent {
		t.Fatalf("decision = %+v", d)
	}
	if e.AttemptsMade != 1 || e.Status != job.StatusDeadLetter {
		t.Errorf("attempts=%d status=%s", e.AttemptsMade, e.Status)
	}
}

func TestOnFailure_TimeoutIsTransient(t *testing.T) {
	e := newEnvelope(2, exp1s)
	d := retry.New().OnFailure(e, fmt.Errorf("%w after 5s", conductor.ErrTimeout), time.Now())
	if d.Action != retry.ActionRetry {
		t.Fatalf("timeout should be retried, got %s", d.Action)
	}
}

func TestOnFailure_AttemptsNeverExceedMax(t *testing.T) {
	eng := retry.New()
	e := newEnvelope(1, exp1s)
	for range 5 {
		eng.OnFailure(e, errors.New("boom"), time.Now())
		if e.AttemptsMade > e.MaxAttempts() {
			t.Fatalf("AttemptsMade %d exceeds MaxAttempts %d", e.AttemptsMade, e.MaxAttempts())
		}
	}
}

func TestOnFailure_FixedBackoffIsConstant(t *testing.T) {
	eng := retry.New()
	e := newEnvelope(5, backoff.Policy{Type: backoff.TypeFixed, BaseDelay: 3 * time.Second})
	for range 3 {
		d := eng.OnFailure(e, errors.New("boom"), time.Now())
		if d.Delay != 3*time.Second {
			t.Fatalf("delay = %v, want 3s", d.Delay)
		}
	}
}

func TestOnAbandon(t *testing.T) {
	e := newEnvelope(3, exp1s)
	d := retry.New().OnAbandon(e, "worker lost", time.Now())
	if d.Status != job.StatusFailed || e.Status != job.StatusFailed || e.AttemptsMade != 1 {
		t.Fatalf("decision=%+v status=%s attempts=%d", d, e.Status, e.AttemptsMade)
	}
}

func TestManualRetry(t *testing.T) {
	tests := []struct {
		name     string
		status   job.Status
		attempts int
		max      int
		wantErr  bool
	}{
		{"failed with attempts left", job.StatusFailed, 2, 5, false},
		{"dead-letter with attempts left", job.StatusDeadLetter, 1, 5, false},
		{"dead-letter exhausted", job.StatusDeadLetter, 5, 5, true},
		{"waiting", job.StatusWaiting, 0, 5, true},
		{"active", job.StatusActive, 1, 5, true},
		{"completed", job.StatusCompleted, 1, 5, true},
		{"cancelled", job.StatusCancelled, 0, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnvelope(tt.max, exp1s)
			e.Status = tt.status
			e.AttemptsMade = tt.attempts
			e.LastError = "previous"

			err := retry.New().ManualRetry(e, time.Now())
			if tt.wantErr {
				if !errors.Is(err, conductor.ErrIllegalState) {
					t.Fatalf("expected ErrIllegalState, got %v", err)
				}
				if e.Status != tt.status {
					t.Errorf("status changed to %s on rejected retry", e.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("ManualRetry: %v", err)
			}
			if e.Status != job.StatusWaiting {
				t.Errorf("status = %s, want waiting", e.Status)
			}
			if e.AttemptsMade != tt.attempts {
				t.Errorf("AttemptsMade changed to %d", e.AttemptsMade)
			}
			if e.AttemptsRemaining() != tt.max-tt.attempts {
				t.Errorf("AttemptsRemaining = %d", e.AttemptsRemaining())
			}
			if e.LastError != "" || e.FinishedAt != nil {
				t.Error("failure bookkeeping not cleared")
			}
		})
	}
}

func TestCanCancel(t *testing.T) {
	for _, s := range job.Statuses {
		e := &job.Envelope{Status: s}
		want := s == job.StatusWaiting || s == job.StatusDelayed
		if retry.CanCancel(e) != want {
			t.Errorf("CanCancel(%s) = %v, want %v", s, !want, want)
		}
	}
}

package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/job"
)

func TestRegistry_TypedHandler(t *testing.T) {
	reg := job.NewRegistry()

	var got string
	job.Register(reg, jobtype.WebhookDelivery, func(_ context.Context, p struct{ URL string }) error {
		got = p.URL
		return nil
	})

	h, ok := reg.Get(jobtype.WebhookDelivery)
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	if err := h(context.Background(), []byte(`{"URL":"https://example.com"}`)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != "https://example.com" {
		t.Errorf("URL = %q, want https://example.com", got)
	}

	err := h(context.Background(), []byte(`{not json`))
	if !conductor.IsPermanent(err) {
		t.Errorf("undecodable payload should be permanent, got %v", err)
	}

	if _, ok := reg.Get(jobtype.DataExport); ok {
		t.Error("unexpected handler for data_export")
	}
}

func TestRegistry_TypesInDeclarationOrder(t *testing.T) {
	reg := job.NewRegistry()
	noop := func(context.Context, []byte) error { return nil }
	reg.Handle(jobtype.Custom, noop)
	reg.Handle(jobtype.ExperimentExecution, noop)

	types := reg.Types()
	if len(types) != 2 || types[0] != jobtype.ExperimentExecution || types[1] != jobtype.Custom {
		t.Errorf("Types() = %v", types)
	}
}

func TestEnvelope_CloneIsDeep(t *testing.T) {
	now := time.Now()
	e := &job.Envelope{
		Payload:     []byte(`{"a":1}`),
		Metadata:    map[string]string{"k": "v"},
		Schedule:    &job.Schedule{Pattern: "* * * * *"},
		ProcessedAt: &now,
	}
	cp := e.Clone()
	cp.Payload[0] = 'X'
	cp.Metadata["k"] = "changed"
	cp.Schedule.Pattern = "@hourly"
	*cp.ProcessedAt = now.Add(time.Hour)

	if e.Payload[0] != '{' {
		t.Error("payload shared between clone and original")
	}
	if e.Metadata["k"] != "v" {
		t.Error("metadata shared between clone and original")
	}
	if e.Schedule.Pattern != "* * * * *" {
		t.Error("schedule shared between clone and original")
	}
	if !e.ProcessedAt.Equal(now) {
		t.Error("timestamps shared between clone and original")
	}
}

func TestEnvelope_AttemptsRemaining(t *testing.T) {
	e := &job.Envelope{AttemptsMade: 2, Retry: job.RetryPolicy{MaxAttempts: 5}}
	if got := e.AttemptsRemaining(); got != 3 {
		t.Errorf("AttemptsRemaining = %d, want 3", got)
	}
	e.AttemptsMade = 7
	if got := e.AttemptsRemaining(); got != 0 {
		t.Errorf("AttemptsRemaining = %d, want 0", got)
	}
}

func TestQueueCounts_Add(t *testing.T) {
	var c job.QueueCounts
	for _, s := range job.Statuses {
		c.Add(s)
	}
	want := job.QueueCounts{Waiting: 1, Active: 1, Completed: 1, Failed: 2, Delayed: 1}
	if c != want {
		t.Errorf("counts = %+v, want %+v", c, want)
	}

	var total job.QueueCounts
	total.Merge(c)
	total.Merge(c)
	if total.Failed != 4 {
		t.Errorf("merged Failed = %d, want 4", total.Failed)
	}
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		s        job.Status
		queued   bool
		terminal bool
	}{
		{job.StatusWaiting, true, false},
		{job.StatusDelayed, true, false},
		{job.StatusActive, false, false},
		{job.StatusCompleted, false, true},
		{job.StatusFailed, false, false},
		{job.StatusDeadLetter, false, true},
		{job.StatusCancelled, false, true},
	}
	for _, tt := range tests {
		if tt.s.Queued() != tt.queued || tt.s.Terminal() != tt.terminal {
			t.Errorf("%s: queued=%v terminal=%v", tt.s, tt.s.Queued(), tt.s.Terminal())
		}
	}
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("bad request")
	err := conductor.Permanent(base)
	if !errors.Is(err, base) || !errors.Is(err, conductor.ErrPermanent) {
		t.Errorf("Permanent should wrap both the cause and ErrPermanent: %v", err)
	}
	if conductor.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if conductor.IsPermanent(conductor.ErrTimeout) {
		t.Error("timeouts must be transient")
	}
}

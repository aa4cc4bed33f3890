// Package storetest is a conformance suite run against every job.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/priority"
)

// Clock is a manually advanced time source shared with the store under
// test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at a whole second.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory builds an empty store reading time from clock.
type Factory func(t *testing.T, clock *Clock) job.Store

// NewEnvelope returns a waiting envelope of type t in workspace ws.
func NewEnvelope(t jobtype.Type, ws string, prio int) *job.Envelope {
	spec := jobtype.MustLookup(t)
	return &job.Envelope{
		Entity:      conductor.NewEntity(),
		ID:          id.NewJobID(),
		Type:        t,
		WorkspaceID: ws,
		CreatedBy:   "user-1",
		Name:        "test " + t.String(),
		Payload:     []byte(`{"ok":true}`),
		Priority:    prio,
		Retry:       job.RetryPolicy{Backoff: spec.Backoff, MaxAttempts: spec.MaxAttempts},
		Status:      job.StatusWaiting,
	}
}

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s job.Store, clock *Clock)
	}{
		{"EnqueueAndGet", testEnqueueAndGet},
		{"PriorityOrder", testPriorityOrder},
		{"DelayedPromotion", testDelayedPromotion},
		{"Cancel", testCancel},
		{"UpdateAndRequeue", testUpdateAndRequeue},
		{"ListIsolation", testListIsolation},
		{"Counts", testCounts},
		{"HeartbeatAndStale", testHeartbeatAndStale},
		{"ConcurrentDequeue", testConcurrentDequeue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock()
			tt.fn(t, newStore(t, clock), clock)
		})
	}
}

func testEnqueueAndGet(t *testing.T, s job.Store, _ *Clock) {
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	e := NewEnvelope(jobtype.DataExport, "A", priority.Resolve(priority.Normal))
	e.Metadata = map[string]string{"source": "ui"}
	if err := s.Enqueue(ctx, e); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(ctx, e); !errors.Is(err, conductor.ErrJobAlreadyExists) {
		t.Fatalf("duplicate Enqueue: expected ErrJobAlreadyExists, got %v", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID.String() != e.ID.String() || got.Type != e.Type || got.WorkspaceID != "A" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if string(got.Payload) != string(e.Payload) || got.Metadata["source"] != "ui" {
		t.Errorf("payload or metadata lost: %s %v", got.Payload, got.Metadata)
	}
	if got.Retry.MaxAttempts != 3 || got.Status != job.StatusWaiting {
		t.Errorf("retry=%+v status=%s", got.Retry, got.Status)
	}

	if _, err := s.Get(ctx, id.NewJobID()); !errors.Is(err, conductor.ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}
}

func testPriorityOrder(t *testing.T, s job.Store, _ *Clock) {
	ctx := context.Background()

	low := NewEnvelope(jobtype.WebhookDelivery, "A", priority.Resolve(priority.Low))
	crit1 := NewEnvelope(jobtype.WebhookDelivery, "A", priority.Resolve(priority.Critical))
	normal := NewEnvelope(jobtype.WebhookDelivery, "B", priority.Resolve(priority.Normal))
	crit2 := NewEnvelope(jobtype.WebhookDelivery, "B", priority.Resolve(priority.Critical))
	other := NewEnvelope(jobtype.TraceAnalysis, "A", priority.Resolve(priority.Critical))

	for _, e := range []*job.Envelope{low, crit1, normal, crit2, other} {
		if err := s.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	want := []*job.Envelope{crit1, crit2, normal, low}
	for i, w := range want {
		got, err := s.Dequeue(ctx, jobtype.WebhookDelivery)
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if got == nil {
			t.Fatalf("Dequeue %d: queue empty early", i)
		}
		if got.ID.String() != w.ID.String() {
			t.Fatalf("Dequeue %d: got priority %d, want %d", i, got.Priority, w.Priority)
		}
		if got.Status != job.StatusActive || got.ProcessedAt == nil {
			t.Errorf("Dequeue %d: status=%s processedAt=%v", i, got.Status, got.ProcessedAt)
		}
	}

	got, err := s.Dequeue(ctx, jobtype.WebhookDelivery)
	if err != nil || got != nil {
		t.Fatalf("drained queue: got %v, %v", got, err)
	}
}

func testDelayedPromotion(t *testing.T, s job.Store, clock *Clock) {
	ctx := context.Background()

	delayed := NewEnvelope(jobtype.ReportGeneration, "A", priority.Resolve(priority.Critical))
	delayed.Status = job.StatusDelayed
	delayed.RunAt = clock.Now().Add(time.Minute)
	ready := NewEnvelope(jobtype.ReportGeneration, "A", priority.Resolve(priority.Low))

	for _, e := range []*job.Envelope{delayed, ready} {
		if err := s.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	got, err := s.Dequeue(ctx, jobtype.ReportGeneration)
	if err != nil || got == nil || got.ID.String() != ready.ID.String() {
		t.Fatalf("expected the ready envelope first, got %v, %v", got, err)
	}
	if got, _ := s.Dequeue(ctx, jobtype.ReportGeneration); got != nil {
		t.Fatal("delayed envelope dequeued before it was due")
	}

	clock.Advance(time.Minute)
	got, err = s.Dequeue(ctx, jobtype.ReportGeneration)
	if err != nil || got == nil || got.ID.String() != delayed.ID.String() {
		t.Fatalf("expected the promoted envelope, got %v, %v", got, err)
	}
}

func testCancel(t *testing.T, s job.Store, clock *Clock) {
	ctx := context.Background()

	waiting := NewEnvelope(jobtype.CleanupTask, "A", priority.Resolve(priority.Normal))
	delayed := NewEnvelope(jobtype.CleanupTask, "A", priority.Resolve(priority.Normal))
	delayed.Status = job.StatusDelayed
	delayed.RunAt = clock.Now().Add(time.Hour)
	active := NewEnvelope(jobtype.CleanupTask, "A", priority.Resolve(priority.Low))

	for _, e := range []*job.Envelope{waiting, delayed, active} {
		if err := s.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	for _, e := range []*job.Envelope{waiting, delayed} {
		got, err := s.Cancel(ctx, e.ID)
		if err != nil {
			t.Fatalf("Cancel %s: %v", e.Status, err)
		}
		if got.Status != job.StatusCancelled || got.FinishedAt == nil {
			t.Errorf("cancelled envelope: status=%s finishedAt=%v", got.Status, got.FinishedAt)
		}
	}

	claimed, err := s.Dequeue(ctx, jobtype.CleanupTask)
	if err != nil || claimed == nil || claimed.ID.String() != active.ID.String() {
		t.Fatalf("cancelled envelopes must leave the queue; got %v, %v", claimed, err)
	}

	if _, err := s.Cancel(ctx, active.ID); !errors.Is(err, conductor.ErrIllegalState) {
		t.Fatalf("Cancel active: expected ErrIllegalState, got %v", err)
	}
	if _, err := s.Cancel(ctx, waiting.ID); !errors.Is(err, conductor.ErrIllegalState) {
		t.Fatalf("Cancel twice: expected ErrIllegalState, got %v", err)
	}
	if _, err := s.Cancel(ctx, id.NewJobID()); !errors.Is(err, conductor.ErrNotFound) {
		t.Fatalf("Cancel missing: expected ErrNotFound, got %v", err)
	}

	clock.Advance(2 * time.Hour)
	if got, _ := s.Dequeue(ctx, jobtype.CleanupTask); got != nil {
		t.Fatal("cancelled delayed envelope was promoted")
	}
}

func testUpdateAndRequeue(t *testing.T, s job.Store, clock *Clock) {
	ctx := context.Background()

	e := NewEnvelope(jobtype.LLMBatchRequest, "A", priority.Resolve(priority.High))
	if err := s.Enqueue(ctx, e); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := s.Dequeue(ctx, jobtype.LLMBatchRequest)
	if err != nil || claimed == nil {
		t.Fatalf("Dequeue: %v, %v", claimed, err)
	}

	claimed.AttemptsMade = 1
	claimed.LastError = "rate limited"
	claimed.Status = job.StatusDelayed
	claimed.RunAt = clock.Now().Add(5 * time.Second)
	if err := s.Requeue(ctx, claimed); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if got, _ := s.Dequeue(ctx, jobtype.LLMBatchRequest); got != nil {
		t.Fatal("requeued envelope dequeued before its backoff elapsed")
	}

	clock.Advance(5 * time.Second)
	again, err := s.Dequeue(ctx, jobtype.LLMBatchRequest)
	if err != nil || again == nil {
		t.Fatalf("Dequeue after backoff: %v, %v", again, err)
	}
	if again.AttemptsMade != 1 || again.LastError != "rate limited" {
		t.Errorf("retry bookkeeping lost: %+v", again)
	}

	now := clock.Now()
	again.Status = job.StatusCompleted
	again.FinishedAt = &now
	if err := s.Update(ctx, again); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get(ctx, e.ID)
	if got.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	if err := s.Requeue(ctx, got); !errors.Is(err, conductor.ErrIllegalState) {
		t.Errorf("Requeue completed: expected ErrIllegalState, got %v", err)
	}
	missing := NewEnvelope(jobtype.LLMBatchRequest, "A", 5)
	if err := s.Update(ctx, missing); !errors.Is(err, conductor.ErrNotFound) {
		t.Errorf("Update missing: expected ErrNotFound, got %v", err)
	}
}

func testListIsolation(t *testing.T, s job.Store, _ *Clock) {
	ctx := context.Background()

	a1 := NewEnvelope(jobtype.DataExport, "A", 5)
	a2 := NewEnvelope(jobtype.TraceAnalysis, "A", 5)
	a2.CreatedBy = "user-2"
	b1 := NewEnvelope(jobtype.DataExport, "B", 5)
	for _, e := range []*job.Envelope{a1, a2, b1} {
		if err := s.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter job.Filter
		want   int
	}{
		{"workspace A", job.Filter{WorkspaceID: "A"}, 2},
		{"workspace B", job.Filter{WorkspaceID: "B"}, 1},
		{"type union", job.Filter{WorkspaceID: "A", Types: []jobtype.Type{jobtype.DataExport, jobtype.TraceAnalysis}}, 2},
		{"single type", job.Filter{WorkspaceID: "A", Types: []jobtype.Type{jobtype.TraceAnalysis}}, 1},
		{"creator", job.Filter{WorkspaceID: "A", CreatedBy: "user-2"}, 1},
		{"unknown workspace", job.Filter{WorkspaceID: "C"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d envelopes, want %d", len(got), tt.want)
			}
			for _, e := range got {
				if e.WorkspaceID != tt.filter.WorkspaceID {
					t.Fatalf("envelope from workspace %s leaked", e.WorkspaceID)
				}
			}
		})
	}

	if _, err := s.List(ctx, job.Filter{}); !errors.Is(err, conductor.ErrValidation) {
		t.Fatalf("List without workspace: expected ErrValidation, got %v", err)
	}
}

func testCounts(t *testing.T, s job.Store, clock *Clock) {
	ctx := context.Background()

	for range 3 {
		if err := s.Enqueue(ctx, NewEnvelope(jobtype.ModelEvaluation, "A", 5)); err != nil {
			t.Fatal(err)
		}
	}
	d := NewEnvelope(jobtype.ModelEvaluation, "A", 5)
	d.Status = job.StatusDelayed
	d.RunAt = clock.Now().Add(time.Hour)
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	e1, _ := s.Dequeue(ctx, jobtype.ModelEvaluation)
	e2, _ := s.Dequeue(ctx, jobtype.ModelEvaluation)
	now := clock.Now()
	e1.Status = job.StatusCompleted
	e1.FinishedAt = &now
	if err := s.Update(ctx, e1); err != nil {
		t.Fatal(err)
	}
	e2.Status = job.StatusDeadLetter
	if err := s.Update(ctx, e2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Dequeue(ctx, jobtype.ModelEvaluation); err != nil {
		t.Fatal(err)
	}

	got, err := s.Counts(ctx, jobtype.ModelEvaluation)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := job.QueueCounts{Active: 1, Completed: 1, Failed: 1, Delayed: 1}
	if got != want {
		t.Fatalf("Counts = %+v, want %+v", got, want)
	}

	other, _ := s.Counts(ctx, jobtype.Custom)
	if other != (job.QueueCounts{}) {
		t.Fatalf("Counts for empty type = %+v", other)
	}
}

func testHeartbeatAndStale(t *testing.T, s job.Store, clock *Clock) {
	ctx := context.Background()

	fresh := NewEnvelope(jobtype.ExperimentExecution, "A", 5)
	lost := NewEnvelope(jobtype.ExperimentExecution, "A", 5)
	for _, e := range []*job.Envelope{lost, fresh} {
		if err := s.Enqueue(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Dequeue(ctx, jobtype.ExperimentExecution); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Dequeue(ctx, jobtype.ExperimentExecution); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	worker := id.NewWorkerID()
	if err := s.Heartbeat(ctx, fresh.ID, worker); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	stale, err := s.Stale(ctx, jobtype.ExperimentExecution, 30*time.Second)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID.String() != lost.ID.String() {
		t.Fatalf("expected only the lost envelope to be stale, got %d", len(stale))
	}

	got, _ := s.Get(ctx, fresh.ID)
	if got.WorkerID.String() != worker.String() {
		t.Errorf("WorkerID = %s, want %s", got.WorkerID, worker)
	}
}

func testConcurrentDequeue(t *testing.T, s job.Store, _ *Clock) {
	ctx := context.Background()
	const total = 60

	for i := range total {
		if err := s.Enqueue(ctx, NewEnvelope(jobtype.FeedbackAggregation, "A", []int{1, 5, 10, 20}[i%4])); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, err := s.Dequeue(ctx, jobtype.FeedbackAggregation)
				if err != nil {
					t.Errorf("Dequeue: %v", err)
					return
				}
				if e == nil {
					return
				}
				mu.Lock()
				seen[e.ID.String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("claimed %d distinct envelopes, want %d", len(seen), total)
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("envelope %s claimed %d times", k, n)
		}
	}
}

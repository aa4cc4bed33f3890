package relayhook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/relay"
	revent "github.com/xraph/relay/event"
	"github.com/xraph/relay/store/memory"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	rh "github.com/xraph/conductor/relay_hook"
)

func newTestRelay(t *testing.T) *relay.Relay {
	t.Helper()
	r, err := relay.New(relay.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("failed to create relay: %v", err)
	}
	if err := rh.RegisterAll(context.Background(), r); err != nil {
		t.Fatalf("failed to register event types: %v", err)
	}
	return r
}

func newTestJob() *job.Envelope {
	return &job.Envelope{
		ID:          id.NewJobID(),
		Name:        "deliver order webhook",
		Type:        jobtype.WebhookDelivery,
		WorkspaceID: "ws_a",
		CreatedBy:   "user-alice",
		Status:      job.StatusActive,
	}
}

func countEvents(t *testing.T, r *relay.Relay, eventType string) []*revent.Event {
	t.Helper()
	events, err := r.Store().ListEvents(context.Background(), revent.ListOpts{Type: eventType, Limit: 10})
	if err != nil {
		t.Fatalf("ListEvents(%s): %v", eventType, err)
	}
	return events
}

func TestRelayHook_Name(t *testing.T) {
	if got := rh.New(newTestRelay(t)).Name(); got != "relay-hook" {
		t.Errorf("Name() = %q", got)
	}
}

func TestRelayHook_JobEventsAreTenanted(t *testing.T) {
	tests := []struct {
		eventType string
		fire      func(*rh.Extension, *job.Envelope) error
	}{
		{rh.EventJobEnqueued, func(h *rh.Extension, j *job.Envelope) error { return h.OnJobEnqueued(context.Background(), j) }},
		{rh.EventJobStarted, func(h *rh.Extension, j *job.Envelope) error { return h.OnJobStarted(context.Background(), j) }},
		{rh.EventJobCompleted, func(h *rh.Extension, j *job.Envelope) error {
			return h.OnJobCompleted(context.Background(), j, 150*time.Millisecond)
		}},
		{rh.EventJobRetrying, func(h *rh.Extension, j *job.Envelope) error {
			return h.OnJobRetrying(context.Background(), j, 2, time.Now().Add(time.Minute))
		}},
		{rh.EventJobDeadLettered, func(h *rh.Extension, j *job.Envelope) error {
			return h.OnJobDeadLettered(context.Background(), j, errors.New("terminal"))
		}},
		{rh.EventJobAbandoned, func(h *rh.Extension, j *job.Envelope) error {
			return h.OnJobAbandoned(context.Background(), j, "worker stopped heartbeating")
		}},
		{rh.EventJobCancelled, func(h *rh.Extension, j *job.Envelope) error { return h.OnJobCancelled(context.Background(), j) }},
		{rh.EventJobRequeued, func(h *rh.Extension, j *job.Envelope) error { return h.OnJobRequeued(context.Background(), j) }},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			r := newTestRelay(t)
			if err := tt.fire(rh.New(r), newTestJob()); err != nil {
				t.Fatalf("hook: %v", err)
			}
			events := countEvents(t, r, tt.eventType)
			if len(events) != 1 {
				t.Fatalf("events = %d, want 1", len(events))
			}
			if events[0].TenantID != "ws_a" {
				t.Errorf("TenantID = %q, want ws_a", events[0].TenantID)
			}
		})
	}
}

func TestRelayHook_ScheduleFiredHasNoTenant(t *testing.T) {
	r := newTestRelay(t)
	if err := rh.New(r).OnScheduleFired(context.Background(), id.NewScheduleID(), id.NewJobID()); err != nil {
		t.Fatal(err)
	}
	events := countEvents(t, r, rh.EventScheduleFired)
	if len(events) != 1 || events[0].TenantID != "" {
		t.Fatalf("events = %+v", events)
	}
}

func TestRelayHook_WithEvents(t *testing.T) {
	r := newTestRelay(t)
	h := rh.New(r, rh.WithEvents(rh.EventJobCompleted))
	ctx := context.Background()
	j := newTestJob()

	if err := h.OnJobEnqueued(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := h.OnJobCompleted(ctx, j, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if n := len(countEvents(t, r, rh.EventJobEnqueued)); n != 0 {
		t.Errorf("enqueued events = %d, want 0", n)
	}
	if n := len(countEvents(t, r, rh.EventJobCompleted)); n != 1 {
		t.Errorf("completed events = %d, want 1", n)
	}
}

func TestRelayHook_PayloadFuncError(t *testing.T) {
	r := newTestRelay(t)
	boom := errors.New("cannot render")
	h := rh.New(r, rh.WithPayloadFunc(rh.EventJobCancelled, func(any) (any, error) { return nil, boom }))

	if err := h.OnJobCancelled(context.Background(), newTestJob()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestRelayHook_ViaRegistry(t *testing.T) {
	r := newTestRelay(t)
	reg := ext.NewRegistry(slog.Default())
	reg.Register(rh.New(r))

	ctx := context.Background()
	j := newTestJob()
	reg.EmitJobEnqueued(ctx, j)
	reg.EmitJobStarted(ctx, j)
	reg.EmitJobCompleted(ctx, j, 50*time.Millisecond)
	reg.EmitJobRetrying(ctx, j, 1, time.Now())
	reg.EmitJobDeadLettered(ctx, j, errors.New("dead"))
	reg.EmitJobAbandoned(ctx, j, "stale")
	reg.EmitJobCancelled(ctx, j)
	reg.EmitJobRequeued(ctx, j)
	reg.EmitScheduleFired(ctx, id.NewScheduleID(), j.ID)

	for _, def := range rh.AllDefinitions() {
		if n := len(countEvents(t, r, def.Name)); n != 1 {
			t.Errorf("%s: events = %d, want 1", def.Name, n)
		}
	}
}

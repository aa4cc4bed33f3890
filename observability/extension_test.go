package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/observability"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func newTestEnvelope() *job.Envelope {
	return &job.Envelope{ID: id.NewJobID(), Name: "nightly export", Type: jobtype.DataExport, WorkspaceID: "A"}
}

func TestMetricsExtension_Name(t *testing.T) {
	if got := newTestExtension().Name(); got != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", got)
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	e := newTestEnvelope()

	tests := []struct {
		name    string
		fire    func(m *observability.MetricsExtension) error
		counter func(m *observability.MetricsExtension) gu.Counter
	}{
		{"enqueued", func(m *observability.MetricsExtension) error { return m.OnJobEnqueued(ctx, e) },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobEnqueued }},
		{"completed", func(m *observability.MetricsExtension) error { return m.OnJobCompleted(ctx, e, time.Second) },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobCompleted }},
		{"retrying", func(m *observability.MetricsExtension) error { return m.OnJobRetrying(ctx, e, 1, time.Now()) },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobRetried }},
		{"dead-lettered", func(m *observability.MetricsExtension) error { return m.OnJobDeadLettered(ctx, e, errors.New("boom")) },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobDeadLettered }},
		{"abandoned", func(m *observability.MetricsExtension) error { return m.OnJobAbandoned(ctx, e, "stale") },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobAbandoned }},
		{"cancelled", func(m *observability.MetricsExtension) error { return m.OnJobCancelled(ctx, e) },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobCancelled }},
		{"requeued", func(m *observability.MetricsExtension) error { return m.OnJobRequeued(ctx, e) },
			func(m *observability.MetricsExtension) gu.Counter { return m.JobRequeued }},
		{"schedule", func(m *observability.MetricsExtension) error { return m.OnScheduleFired(ctx, id.NewScheduleID(), e.ID) },
			func(m *observability.MetricsExtension) gu.Counter { return m.ScheduleFired }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestExtension()
			if err := tt.fire(m); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := tt.counter(m).Value(); got != 1 {
				t.Errorf("counter = %v, want 1", got)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	m := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(m)

	ctx := context.Background()
	r.EmitJobEnqueued(ctx, newTestEnvelope())
	r.EmitJobEnqueued(ctx, newTestEnvelope())
	r.EmitJobCancelled(ctx, newTestEnvelope())

	if m.JobEnqueued.Value() != 2 {
		t.Errorf("JobEnqueued: want 2, got %v", m.JobEnqueued.Value())
	}
	if m.JobCancelled.Value() != 1 {
		t.Errorf("JobCancelled: want 1, got %v", m.JobCancelled.Value())
	}
}

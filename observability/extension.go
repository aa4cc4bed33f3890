package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.JobAbandoned    = (*MetricsExtension)(nil)
	_ ext.JobCancelled    = (*MetricsExtension)(nil)
	_ ext.JobRequeued     = (*MetricsExtension)(nil)
	_ ext.ScheduleFired   = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via a go-utils
// MetricFactory.
type MetricsExtension struct {
	JobEnqueued     gu.Counter
	JobCompleted    gu.Counter
	JobRetried      gu.Counter
	JobDeadLettered gu.Counter
	JobAbandoned    gu.Counter
	JobCancelled    gu.Counter
	JobRequeued     gu.Counter
	ScheduleFired   gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics
// collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("conductor/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the
// provided MetricFactory.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobEnqueued:     factory.Counter("conductor.job.enqueued"),
		JobCompleted:    factory.Counter("conductor.job.completed"),
		JobRetried:      factory.Counter("conductor.job.retried"),
		JobDeadLettered: factory.Counter("conductor.job.dead_lettered"),
		JobAbandoned:    factory.Counter("conductor.job.abandoned"),
		JobCancelled:    factory.Counter("conductor.job.cancelled"),
		JobRequeued:     factory.Counter("conductor.job.requeued"),
		ScheduleFired:   factory.Counter("conductor.schedule.fired"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(context.Context, *job.Envelope) error {
	m.JobEnqueued.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(context.Context, *job.Envelope, time.Duration) error {
	m.JobCompleted.Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(context.Context, *job.Envelope, int, time.Time) error {
	m.JobRetried.Inc()
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(context.Context, *job.Envelope, error) error {
	m.JobDeadLettered.Inc()
	return nil
}

// OnJobAbandoned implements ext.JobAbandoned.
func (m *MetricsExtension) OnJobAbandoned(context.Context, *job.Envelope, string) error {
	m.JobAbandoned.Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(context.Context, *job.Envelope) error {
	m.JobCancelled.Inc()
	return nil
}

// OnJobRequeued implements ext.JobRequeued.
func (m *MetricsExtension) OnJobRequeued(context.Context, *job.Envelope) error {
	m.JobRequeued.Inc()
	return nil
}

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(context.Context, id.ScheduleID, id.JobID) error {
	m.ScheduleFired.Inc()
	return nil
}

package health

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

var _ ext.JobCompleted = (*Durations)(nil)

// DefaultSmoothing weighs each new sample in the moving average.
const DefaultSmoothing = 0.2

// Durations learns the average attempt duration per type from completion
// hooks as an exponentially weighted moving average.
type Durations struct {
	mu    sync.RWMutex
	alpha float64
	avg   map[jobtype.Type]float64
}

// NewDurations returns a tracker. alpha outside (0, 1] uses
// DefaultSmoothing.
func NewDurations(alpha float64) *Durations {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultSmoothing
	}
	return &Durations{alpha: alpha, avg: make(map[jobtype.Type]float64)}
}

// Name implements ext.Extension.
func (d *Durations) Name() string { return "health-durations" }

// OnJobCompleted implements ext.JobCompleted.
func (d *Durations) OnJobCompleted(_ context.Context, e *job.Envelope, elapsed time.Duration) error {
	d.Observe(e.Type, elapsed)
	return nil
}

// Observe adds one sample.
func (d *Durations) Observe(t jobtype.Type, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sample := float64(elapsed)
	prev, ok := d.avg[t]
	if !ok {
		d.avg[t] = sample
		return
	}
	d.avg[t] = d.alpha*sample + (1-d.alpha)*prev
}

// Average returns the learned average for t.
func (d *Durations) Average(t jobtype.Type) (time.Duration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.avg[t]
	return time.Duration(v), ok
}

package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// ErrNoOperator is returned by pause and resume requests when no
// operator is configured.
var ErrNoOperator = errors.New("health: no operator configured")

// Counter reads per-type queue counts. job.Store satisfies it.
type Counter interface {
	Counts(ctx context.Context, t jobtype.Type) (job.QueueCounts, error)
}

// Operator executes pause and resume requests. The monitor only asks.
type Operator interface {
	RequestPause(ctx context.Context, t jobtype.Type, reason string) error
	RequestResume(ctx context.Context, t jobtype.Type) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithConcurrency overrides the registry concurrency used for
// utilization, per type.
func WithConcurrency(c map[jobtype.Type]int) Option {
	return func(m *Monitor) {
		for t, n := range c {
			m.concurrency[t] = n
		}
	}
}

// WithOperator sets the collaborator that executes pause requests.
func WithOperator(op Operator) Option {
	return func(m *Monitor) { m.operator = op }
}

// WithDurations sets the attempt-duration tracker used by the advisor.
func WithDurations(d *Durations) Option {
	return func(m *Monitor) { m.durations = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock sets the time source stamped on snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor computes snapshots on demand and drives pause requests.
type Monitor struct {
	counter     Counter
	cfg         conductor.HealthConfig
	concurrency map[jobtype.Type]int
	operator    Operator
	durations   *Durations
	advisor     *Advisor
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	paused map[jobtype.Type]bool
	// failed is the failed count seen by the last check, per type.
	failed map[jobtype.Type]int64
	// resumedAt holds the failed count at a manual resume. The type is
	// not paused again until it fails past that count.
	resumedAt map[jobtype.Type]int64
}

// NewMonitor creates a Monitor reading counts from counter.
func NewMonitor(counter Counter, cfg conductor.HealthConfig, opts ...Option) *Monitor {
	m := &Monitor{
		counter:     counter,
		cfg:         cfg,
		concurrency: make(map[jobtype.Type]int, len(jobtype.All)),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		paused:      make(map[jobtype.Type]bool),
		failed:      make(map[jobtype.Type]int64),
		resumedAt:   make(map[jobtype.Type]int64),
	}
	for _, t := range jobtype.All {
		m.concurrency[t] = jobtype.MustLookup(t).DefaultConcurrency
	}
	for _, opt := range opts {
		opt(m)
	}
	m.advisor = NewAdvisor(cfg, m.durations)
	return m
}

// Advisor returns the monitor's advisor.
func (m *Monitor) Advisor() *Advisor { return m.advisor }

// Snapshot reads fresh counts for t and evaluates them.
func (m *Monitor) Snapshot(ctx context.Context, t jobtype.Type) (Snapshot, error) {
	if !t.Valid() {
		return Snapshot{}, fmt.Errorf("%w: %s", conductor.ErrUnsupportedType, t)
	}
	counts, err := m.counter.Counts(ctx, t)
	if err != nil {
		return Snapshot{}, fmt.Errorf("counts for %s: %w", t, err)
	}
	return Evaluate(t, counts, m.concurrency[t], m.cfg, m.now()), nil
}

// SnapshotAll evaluates every registered type in parallel, in registry
// order.
func (m *Monitor) SnapshotAll(ctx context.Context) ([]Snapshot, error) {
	out := make([]Snapshot, len(jobtype.All))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range jobtype.All {
		g.Go(func() error {
			s, err := m.Snapshot(gctx, t)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Check snapshots every type, returns the recommendations and, when
// configured, asks the operator to pause queues whose failure rate is
// critical and to resume the ones it paused once they recover.
//
// The failure rate comes from retained counts, which a paused queue no
// longer moves. Recovery therefore needs something outside the queue to
// shift them (manual retries that complete, retention trimming failed
// envelopes), and in practice resume is driven by an operator calling
// RequestResume. A manually resumed type is paused again only after new
// failures are recorded.
func (m *Monitor) Check(ctx context.Context) ([]Recommendation, error) {
	snaps, err := m.SnapshotAll(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, len(snaps))
	for i, s := range snaps {
		m.mu.Lock()
		m.failed[s.JobType] = s.Counts.Failed
		m.mu.Unlock()
		recs[i] = m.advisor.Recommend(s)
		m.logRecommendation(recs[i])
		if m.cfg.PauseOnCriticalFailed && m.operator != nil {
			m.reconcilePause(ctx, recs[i])
		}
	}
	return recs, nil
}

func (m *Monitor) reconcilePause(ctx context.Context, r Recommendation) {
	m.mu.Lock()
	wasPaused := m.paused[r.JobType]
	baseline, held := m.resumedAt[r.JobType]
	if held && (!r.PauseRequested || r.Snapshot.Counts.Failed > baseline) {
		delete(m.resumedAt, r.JobType)
		held = false
	}
	m.mu.Unlock()

	switch {
	case r.PauseRequested && !wasPaused && held:
		m.logger.Debug("pause held after manual resume",
			slog.String("job_type", r.JobType.String()),
			slog.Int64("failed", r.Snapshot.Counts.Failed),
		)
	case r.PauseRequested && !wasPaused:
		if err := m.RequestPause(ctx, r.JobType, r.Reason); err != nil {
			m.logger.Error("pause request failed",
				slog.String("job_type", r.JobType.String()),
				slog.String("error", err.Error()),
			)
		}
	case !r.PauseRequested && wasPaused:
		if err := m.resume(ctx, r.JobType); err != nil {
			m.logger.Error("resume request failed",
				slog.String("job_type", r.JobType.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RequestPause asks the operator to pause t.
func (m *Monitor) RequestPause(ctx context.Context, t jobtype.Type, reason string) error {
	if m.operator == nil {
		return ErrNoOperator
	}
	if err := m.operator.RequestPause(ctx, t, reason); err != nil {
		return err
	}
	m.mu.Lock()
	m.paused[t] = true
	m.mu.Unlock()
	m.logger.Warn("queue pause requested",
		slog.String("job_type", t.String()),
		slog.String("reason", reason),
	)
	return nil
}

// RequestResume asks the operator to resume t. Health checks leave t
// running until it records failures beyond those already counted.
func (m *Monitor) RequestResume(ctx context.Context, t jobtype.Type) error {
	if err := m.resume(ctx, t); err != nil {
		return err
	}
	m.mu.Lock()
	m.resumedAt[t] = m.failed[t]
	m.mu.Unlock()
	return nil
}

func (m *Monitor) resume(ctx context.Context, t jobtype.Type) error {
	if m.operator == nil {
		return ErrNoOperator
	}
	if err := m.operator.RequestResume(ctx, t); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.paused, t)
	m.mu.Unlock()
	m.logger.Info("queue resume requested", slog.String("job_type", t.String()))
	return nil
}

// Run checks health every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("health check failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (m *Monitor) logRecommendation(r Recommendation) {
	if r.Action == ActionHold && r.Snapshot.Status == StatusHealthy {
		return
	}
	m.logger.Info("autoscale recommendation",
		slog.String("job_type", r.JobType.String()),
		slog.String("action", string(r.Action)),
		slog.String("status", string(r.Snapshot.Status)),
		slog.Int("current_workers", r.CurrentWorkers),
		slog.Int("recommended_workers", r.RecommendedWorkers),
		slog.String("reason", r.Reason),
	)
}

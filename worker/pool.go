package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/conductor/ext"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/middleware"
)

// QueueManager gates dequeued envelopes by queue and workspace. The pool
// calls Acquire before executing an envelope and Release after the
// attempt ends. A paused queue is not dequeued at all.
type QueueManager interface {
	// Acquire checks pause state, concurrency and rate limits for the
	// queue/workspace combination. Returns true if the attempt may start.
	Acquire(queue, workspaceID string) bool
	// Release decrements the active count for the queue/workspace pair.
	Release(queue, workspaceID string)
	// Paused reports whether the queue is paused.
	Paused(queue string) bool
}

// Pool runs up to concurrency attempts of a single job type in
// parallel. Running attempts are never preempted.
type Pool struct {
	jobType      jobtype.Type
	queue        string
	store        job.Store
	executor     *Executor
	extensions   *ext.Registry
	concurrency  int
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Heartbeat / reaper configuration.
	heartbeatInterval time.Duration
	staleJobThreshold time.Duration

	// Queue manager (optional).
	queueManager QueueManager

	wake       chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how often idle workers poll for new envelopes.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool sends heartbeats for
// active attempts. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithStaleJobThreshold sets the threshold after which active attempts
// without a heartbeat are reaped. A zero value disables reaping.
func WithStaleJobThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleJobThreshold = d }
}

// WithQueueManager sets the queue manager for pause, workspace quota and
// rate limiting.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool for job type t. Concurrency defaults to
// the registry value for t.
func NewPool(
	t jobtype.Type,
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	spec := jobtype.MustLookup(t)
	p := &Pool{
		jobType:      t,
		queue:        spec.Queue,
		store:        store,
		executor:     executor,
		extensions:   extensions,
		concurrency:  spec.DefaultConcurrency,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wake = make(chan struct{}, p.concurrency)
	return p
}

// Type returns the job type served by the pool.
func (p *Pool) Type() jobtype.Type { return p.jobType }

// Concurrency returns the maximum number of parallel attempts.
func (p *Pool) Concurrency() int { return p.concurrency }

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Notify wakes one idle worker so a freshly enqueued envelope does not
// wait for the next poll. It never blocks.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.String("job_type", p.jobType.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	if p.staleJobThreshold > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active attempts are cancelled when time
// runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping",
		slog.String("worker_id", p.workerID.String()),
		slog.String("job_type", p.jobType.String()),
	)

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully", slog.String("job_type", p.jobType.String()))
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs",
			slog.String("job_type", p.jobType.String()))
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.queueManager != nil && p.queueManager.Paused(p.queue) {
			p.sleep()
			continue
		}

		e, err := p.store.Dequeue(context.Background(), p.jobType)
		if err != nil {
			p.logger.Error("dequeue error",
				slog.String("job_type", p.jobType.String()),
				slog.String("error", err.Error()),
			)
			p.sleep()
			continue
		}
		if e == nil {
			p.sleep()
			continue
		}

		if p.queueManager != nil && !p.queueManager.Acquire(p.queue, e.WorkspaceID) {
			p.requeueGated(e)
			p.sleep()
			continue
		}

		p.run(e)

		if p.queueManager != nil {
			p.queueManager.Release(p.queue, e.WorkspaceID)
		}
	}
}

// run executes one attempt of a claimed envelope. It returns only once
// the handler has returned, so a handler still running past its timeout
// keeps holding the worker slot even though its attempt has already been
// reported.
func (p *Pool) run(e *job.Envelope) {
	e.WorkerID = p.workerID
	p.extensions.EmitJobStarted(context.Background(), e)

	var handlers sync.WaitGroup
	ctx, cancel := context.WithCancel(middleware.WithHandlerGroup(context.Background(), &handlers))
	p.trackJob(e.ID.String(), cancel)

	if err := p.executor.Execute(ctx, e); err != nil {
		p.logger.Debug("job attempt failed",
			slog.String("job_id", e.ID.String()),
			slog.String("job_name", e.Name),
			slog.String("error", err.Error()),
		)
	}

	p.untrackJob(e.ID.String())
	cancel()
	p.awaitHandlers(e, &handlers)
}

// awaitHandlers blocks until every handler goroutine of the attempt has
// returned or the pool is stopping.
func (p *Pool) awaitHandlers(e *job.Envelope, handlers *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	default:
	}

	p.logger.Warn("timed out handler still running, holding worker slot",
		slog.String("job_id", e.ID.String()),
		slog.String("job_type", p.jobType.String()),
	)
	select {
	case <-done:
	case <-p.stopCh:
	}
}

// requeueGated returns a gated envelope to its queue as delayed. The
// claim is not an attempt, so AttemptsMade is untouched.
func (p *Pool) requeueGated(e *job.Envelope) {
	now := time.Now().UTC()
	e.Status = job.StatusDelayed
	e.RunAt = now.Add(p.pollInterval)
	e.WorkerID = id.Nil
	e.ProcessedAt = nil
	e.HeartbeatAt = nil
	e.UpdatedAt = now
	if err := p.store.Requeue(context.Background(), e); err != nil {
		p.logger.Error("failed to re-enqueue gated job",
			slog.String("job_id", e.ID.String()),
			slog.String("workspace_id", e.WorkspaceID),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop periodically sends heartbeats for all active attempts.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Pool) sendHeartbeats() {
	p.activeMu.Lock()
	jobIDs := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		jobIDs = append(jobIDs, jobID)
	}
	p.activeMu.Unlock()

	for _, jobIDStr := range jobIDs {
		parsedID, parseErr := id.ParseJobID(jobIDStr)
		if parseErr != nil {
			p.logger.Warn("heartbeat: invalid job id", slog.String("job_id", jobIDStr))
			continue
		}
		if err := p.store.Heartbeat(context.Background(), parsedID, p.workerID); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reaperLoop periodically abandons stale attempts whose heartbeat has
// expired.
func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.staleJobThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapStaleJobs()
		}
	}
}

func (p *Pool) reapStaleJobs() {
	stale, err := p.store.Stale(context.Background(), p.jobType, p.staleJobThreshold)
	if err != nil {
		p.logger.Error("reap stale jobs error",
			slog.String("job_type", p.jobType.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, e := range stale {
		if p.isActive(e.ID.String()) {
			continue
		}
		if abandonErr := p.executor.Abandon(context.Background(), e, "worker stopped heartbeating"); abandonErr != nil {
			continue
		}
		p.logger.Info("reaped stale job",
			slog.String("job_id", e.ID.String()),
			slog.String("job_name", e.Name),
		)
	}
}

func (p *Pool) sleep() {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.wake:
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) isActive(jobID string) bool {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	_, ok := p.activeJobs[jobID]
	return ok
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}

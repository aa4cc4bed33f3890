// Package memory is an in-process job.Store for development, tests and
// single-node deployments. Each job type has a priority heap of ready
// envelopes and a min-heap of delayed envelopes keyed by due time.
package memory

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

var _ job.Store = (*Store)(nil)

type typeQueue struct {
	ready   readyHeap
	delayed delayedHeap
}

// Store is a fully in-memory job.Store. Safe for concurrent access.
type Store struct {
	mu sync.Mutex

	jobs   map[string]*job.Envelope
	queued map[string]*item
	queues map[jobtype.Type]*typeQueue
	seq    uint64

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for due-time promotion.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:   make(map[string]*job.Envelope),
		queued: make(map[string]*item),
		queues: make(map[jobtype.Type]*typeQueue),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// Enqueue persists a new waiting or delayed envelope.
func (s *Store) Enqueue(_ context.Context, e *job.Envelope) error {
	if !e.Status.Queued() {
		return fmt.Errorf("%w: cannot enqueue %s envelope", conductor.ErrIllegalState, e.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.ID.String()
	if _, exists := s.jobs[key]; exists {
		return conductor.ErrJobAlreadyExists
	}
	s.putLocked(e.Clone())
	return nil
}

// Dequeue promotes due delayed envelopes of t, then claims the best ready
// one.
func (s *Store) Dequeue(_ context.Context, t jobtype.Type) (*job.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[t]
	if q == nil {
		return nil, nil
	}

	now := s.now()
	for q.delayed.Len() > 0 && !q.delayed[0].due.After(now) {
		it := heap.Pop(&q.delayed).(*item) //nolint:errcheck // only *item is pushed
		e := s.jobs[it.id]
		e.Status = job.StatusWaiting
		e.UpdatedAt = now
		s.seq++
		it.seq = s.seq
		heap.Push(&q.ready, it)
	}

	if q.ready.Len() == 0 {
		return nil, nil
	}

	it := heap.Pop(&q.ready).(*item) //nolint:errcheck // only *item is pushed
	delete(s.queued, it.id)

	e := s.jobs[it.id]
	e.Status = job.StatusActive
	e.ProcessedAt = &now
	e.HeartbeatAt = &now
	e.FinishedAt = nil
	e.UpdatedAt = now
	return e.Clone(), nil
}

// Get retrieves an envelope by ID.
func (s *Store) Get(_ context.Context, jobID id.JobID) (*job.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, conductor.ErrNotFound
	}
	return e.Clone(), nil
}

// Update persists an existing envelope. Queue membership follows the new
// status.
func (s *Store) Update(_ context.Context, e *job.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[e.ID.String()]; !ok {
		return conductor.ErrNotFound
	}
	s.putLocked(e.Clone())
	return nil
}

// Requeue persists an existing waiting or delayed envelope and places it
// back in its queue.
func (s *Store) Requeue(ctx context.Context, e *job.Envelope) error {
	if !e.Status.Queued() {
		return fmt.Errorf("%w: cannot requeue %s envelope", conductor.ErrIllegalState, e.Status)
	}
	return s.Update(ctx, e)
}

// Cancel removes a queued envelope and marks it cancelled.
func (s *Store) Cancel(_ context.Context, jobID id.JobID) (*job.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobID.String()
	e, ok := s.jobs[key]
	if !ok {
		return nil, conductor.ErrNotFound
	}
	if _, queued := s.queued[key]; !queued || !e.Status.Queued() {
		return nil, fmt.Errorf("%w: job %s is %s", conductor.ErrIllegalState, key, e.Status)
	}
	s.unqueueLocked(e)

	now := s.now()
	e.Status = job.StatusCancelled
	e.FinishedAt = &now
	e.UpdatedAt = now
	return e.Clone(), nil
}

// List returns envelopes of one workspace matching f, oldest first.
func (s *Store) List(_ context.Context, f job.Filter) ([]*job.Envelope, error) {
	if f.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: list requires a workspace", conductor.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	types := make(map[jobtype.Type]struct{}, len(f.Types))
	for _, t := range f.Types {
		types[t] = struct{}{}
	}

	out := make([]*job.Envelope, 0)
	for _, e := range s.jobs {
		if e.WorkspaceID != f.WorkspaceID {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[e.Type]; !ok {
				continue
			}
		}
		if f.CreatedBy != "" && e.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, e.Clone())
	}

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

// Counts returns status counts for t.
func (s *Store) Counts(_ context.Context, t jobtype.Type) (job.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c job.QueueCounts
	for _, e := range s.jobs {
		if e.Type == t {
			c.Add(e.Status)
		}
	}
	return c, nil
}

// Heartbeat records liveness for an active envelope.
func (s *Store) Heartbeat(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID.String()]
	if !ok {
		return conductor.ErrNotFound
	}
	if e.Status != job.StatusActive {
		return fmt.Errorf("%w: heartbeat for %s job", conductor.ErrIllegalState, e.Status)
	}
	now := s.now()
	e.HeartbeatAt = &now
	e.WorkerID = workerID
	return nil
}

// Stale returns active envelopes of t that have not heartbeated within
// threshold.
func (s *Store) Stale(_ context.Context, t jobtype.Type, threshold time.Duration) ([]*job.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-threshold)
	var stale []*job.Envelope
	for _, e := range s.jobs {
		if e.Type != t || e.Status != job.StatusActive {
			continue
		}
		last := e.HeartbeatAt
		if last == nil {
			last = e.ProcessedAt
		}
		if last != nil && last.Before(cutoff) {
			stale = append(stale, e.Clone())
		}
	}
	return stale, nil
}

// putLocked stores e and places it in the queue matching its status,
// dropping any previous queue membership. Caller holds s.mu.
func (s *Store) putLocked(e *job.Envelope) {
	key := e.ID.String()
	if old, ok := s.jobs[key]; ok {
		s.unqueueLocked(old)
	}
	s.jobs[key] = e

	if !e.Status.Queued() {
		return
	}
	q := s.queues[e.Type]
	if q == nil {
		q = &typeQueue{}
		s.queues[e.Type] = q
	}
	s.seq++
	it := &item{id: key, priority: e.Priority, seq: s.seq, due: e.RunAt}
	if e.Status == job.StatusDelayed {
		heap.Push(&q.delayed, it)
	} else {
		heap.Push(&q.ready, it)
	}
	s.queued[key] = it
}

// unqueueLocked removes e from whichever heap holds it. Caller holds s.mu.
func (s *Store) unqueueLocked(e *job.Envelope) {
	key := e.ID.String()
	it, ok := s.queued[key]
	if !ok {
		return
	}
	delete(s.queued, key)

	q := s.queues[e.Type]
	if q == nil || it.index < 0 {
		return
	}
	switch {
	case it.index < q.ready.Len() && q.ready[it.index] == it:
		heap.Remove(&q.ready, it.index)
	case it.index < q.delayed.Len() && q.delayed[it.index] == it:
		heap.Remove(&q.delayed, it.index)
	}
}

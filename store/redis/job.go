package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// Enqueue stores a new envelope and adds it to its ready or delayed set.
func (s *Store) Enqueue(ctx context.Context, e *job.Envelope) error {
	if !e.Status.Queued() {
		return fmt.Errorf("%w: cannot enqueue %s envelope", conductor.ErrIllegalState, e.Status)
	}

	jID := e.ID.String()
	key := jobKey(jID)

	created, err := s.client.HSetNX(ctx, key, "id", jID).Result()
	if err != nil {
		return fmt.Errorf("conductor/redis: enqueue reserve: %w", err)
	}
	if !created {
		return conductor.ErrJobAlreadyExists
	}

	seq, err := s.nextSeq(ctx, e)
	if err != nil {
		s.client.Del(ctx, key) //nolint:errcheck // best-effort cleanup of the reservation
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, envelopeToMap(e))
	pipe.SAdd(ctx, workspaceKey(e.WorkspaceID), jID)
	setStatus(ctx, pipe, e.Type, jID, e.Status)
	addToQueue(ctx, pipe, e, seq)
	if _, err := pipe.Exec(ctx); err != nil {
		s.client.Del(ctx, key) //nolint:errcheck // best-effort cleanup of the reservation
		return fmt.Errorf("conductor/redis: enqueue: %w", err)
	}
	return nil
}

// Dequeue promotes due delayed envelopes of t and claims the best ready
// one with ZPOPMIN.
func (s *Store) Dequeue(ctx context.Context, t jobtype.Type) (*job.Envelope, error) {
	now := s.now()
	if err := s.promote(ctx, t, now); err != nil {
		return nil, err
	}

	members, err := s.client.ZPopMin(ctx, readyKey(t), 1).Result()
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: dequeue zpopmin: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	jID, ok := members[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("conductor/redis: dequeue: unexpected member %v", members[0].Member)
	}

	key := jobKey(jID)
	ts := now.Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(job.StatusActive),
		"processed_at", ts,
		"heartbeat_at", ts,
		"updated_at", ts,
	)
	pipe.HDel(ctx, key, "finished_at")
	setStatus(ctx, pipe, t, jID, job.StatusActive)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("conductor/redis: dequeue claim: %w", err)
	}

	return s.getByKey(ctx, key)
}

// promote moves due members of the delayed set into the ready set. Only
// the caller whose ZREM removes a member promotes it.
func (s *Store) promote(ctx context.Context, t jobtype.Type, now time.Time) error {
	due, err := s.client.ZRangeByScore(ctx, delayedKey(t), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("conductor/redis: promote scan: %w", err)
	}

	for _, jID := range due {
		removed, err := s.client.ZRem(ctx, delayedKey(t), jID).Result()
		if err != nil {
			return fmt.Errorf("conductor/redis: promote zrem: %w", err)
		}
		if removed == 0 {
			continue
		}

		prio, err := s.client.HGet(ctx, jobKey(jID), "priority").Int()
		if err != nil {
			return fmt.Errorf("conductor/redis: promote priority: %w", err)
		}
		seq, err := s.client.Incr(ctx, seqKey).Result()
		if err != nil {
			return fmt.Errorf("conductor/redis: promote seq: %w", err)
		}

		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, jobKey(jID),
			"status", string(job.StatusWaiting),
			"updated_at", now.Format(time.RFC3339Nano),
		)
		setStatus(ctx, pipe, t, jID, job.StatusWaiting)
		pipe.ZAdd(ctx, readyKey(t), goredis.Z{Score: readyScore(prio, seq), Member: jID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("conductor/redis: promote: %w", err)
		}
	}
	return nil
}

// Get retrieves an envelope by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Envelope, error) {
	return s.getByKey(ctx, jobKey(jobID.String()))
}

// Update replaces an existing envelope. Queue membership follows the new
// status.
func (s *Store) Update(ctx context.Context, e *job.Envelope) error {
	jID := e.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conductor/redis: update exists: %w", err)
	}
	if exists == 0 {
		return conductor.ErrNotFound
	}

	seq, err := s.nextSeq(ctx, e)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, readyKey(e.Type), jID)
	pipe.ZRem(ctx, delayedKey(e.Type), jID)
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, envelopeToMap(e))
	setStatus(ctx, pipe, e.Type, jID, e.Status)
	addToQueue(ctx, pipe, e, seq)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conductor/redis: update: %w", err)
	}
	return nil
}

// Requeue persists a waiting or delayed envelope and places it back in
// its queue.
func (s *Store) Requeue(ctx context.Context, e *job.Envelope) error {
	if !e.Status.Queued() {
		return fmt.Errorf("%w: cannot requeue %s envelope", conductor.ErrIllegalState, e.Status)
	}
	return s.Update(ctx, e)
}

// Cancel removes a queued envelope. Winning the ZREM against a concurrent
// ZPOPMIN or promotion decides ownership.
func (s *Store) Cancel(ctx context.Context, jobID id.JobID) (*job.Envelope, error) {
	jID := jobID.String()
	key := jobKey(jID)

	e, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !e.Status.Queued() {
		return nil, fmt.Errorf("%w: job %s is %s", conductor.ErrIllegalState, jID, e.Status)
	}

	pipe := s.client.TxPipeline()
	fromReady := pipe.ZRem(ctx, readyKey(e.Type), jID)
	fromDelayed := pipe.ZRem(ctx, delayedKey(e.Type), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("conductor/redis: cancel zrem: %w", err)
	}
	if fromReady.Val()+fromDelayed.Val() == 0 {
		return nil, fmt.Errorf("%w: job %s was claimed before it could be cancelled",
			conductor.ErrIllegalState, jID)
	}

	now := s.now()
	ts := now.Format(time.RFC3339Nano)
	pipe = s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(job.StatusCancelled),
		"finished_at", ts,
		"updated_at", ts,
	)
	setStatus(ctx, pipe, e.Type, jID, job.StatusCancelled)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("conductor/redis: cancel: %w", err)
	}

	e.Status = job.StatusCancelled
	e.FinishedAt = &now
	e.UpdatedAt = now
	return e, nil
}

// List returns envelopes of one workspace matching f, oldest first.
func (s *Store) List(ctx context.Context, f job.Filter) ([]*job.Envelope, error) {
	if f.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: list requires a workspace", conductor.ErrValidation)
	}

	ids, err := s.client.SMembers(ctx, workspaceKey(f.WorkspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: list smembers: %w", err)
	}
	if len(ids) == 0 {
		return []*job.Envelope{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("conductor/redis: list hgetall: %w", err)
	}

	types := make(map[jobtype.Type]struct{}, len(f.Types))
	for _, t := range f.Types {
		types[t] = struct{}{}
	}

	out := make([]*job.Envelope, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		e, err := mapToEnvelope(vals)
		if err != nil {
			s.logger.Warn("skipping unreadable envelope", "error", err)
			continue
		}
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
		out = append(out, e)
	}

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

// Counts returns the cardinality of each status set of t.
func (s *Store) Counts(ctx context.Context, t jobtype.Type) (job.QueueCounts, error) {
	pipe := s.client.Pipeline()
	cmds := make(map[job.Status]*goredis.IntCmd, len(job.Statuses))
	for _, st := range job.Statuses {
		cmds[st] = pipe.SCard(ctx, statusKey(t, st))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return job.QueueCounts{}, fmt.Errorf("conductor/redis: counts: %w", err)
	}

	return job.QueueCounts{
		Waiting:   cmds[job.StatusWaiting].Val(),
		Active:    cmds[job.StatusActive].Val(),
		Completed: cmds[job.StatusCompleted].Val(),
		Failed:    cmds[job.StatusFailed].Val() + cmds[job.StatusDeadLetter].Val(),
		Delayed:   cmds[job.StatusDelayed].Val(),
	}, nil
}

// Heartbeat records liveness for an active envelope.
func (s *Store) Heartbeat(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	status, err := s.client.HGet(ctx, key, "status").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return conductor.ErrNotFound
		}
		return fmt.Errorf("conductor/redis: heartbeat status: %w", err)
	}
	if job.Status(status) != job.StatusActive {
		return fmt.Errorf("%w: heartbeat for %s job", conductor.ErrIllegalState, status)
	}

	ts := s.now().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key, "heartbeat_at", ts, "worker_id", workerID.String()).Err(); err != nil {
		return fmt.Errorf("conductor/redis: heartbeat: %w", err)
	}
	return nil
}

// Stale returns active envelopes of t whose last heartbeat is older than
// threshold.
func (s *Store) Stale(ctx context.Context, t jobtype.Type, threshold time.Duration) ([]*job.Envelope, error) {
	ids, err := s.client.SMembers(ctx, statusKey(t, job.StatusActive)).Result()
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: stale smembers: %w", err)
	}

	cutoff := s.now().Add(-threshold)
	var stale []*job.Envelope
	for _, jID := range ids {
		e, err := s.getByKey(ctx, jobKey(jID))
		if err != nil {
			continue
		}
		if e.Status != job.StatusActive {
			continue
		}
		last := e.HeartbeatAt
		if last == nil {
			last = e.ProcessedAt
		}
		if last != nil && last.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

// ── helpers ──

// readyScore orders higher priority first, then lower sequence. Lower
// score pops first.
func readyScore(priority int, seq int64) float64 {
	return float64(-priority)*1e13 + float64(seq)
}

// nextSeq allocates a FIFO sequence when e is going into the ready set.
func (s *Store) nextSeq(ctx context.Context, e *job.Envelope) (int64, error) {
	if e.Status != job.StatusWaiting {
		return 0, nil
	}
	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("conductor/redis: sequence: %w", err)
	}
	return seq, nil
}

func addToQueue(ctx context.Context, pipe goredis.Pipeliner, e *job.Envelope, seq int64) {
	jID := e.ID.String()
	switch e.Status {
	case job.StatusWaiting:
		pipe.ZAdd(ctx, readyKey(e.Type), goredis.Z{Score: readyScore(e.Priority, seq), Member: jID})
	case job.StatusDelayed:
		pipe.ZAdd(ctx, delayedKey(e.Type), goredis.Z{Score: float64(e.RunAt.UnixMilli()), Member: jID})
	}
}

// setStatus moves jID into the status set of st, leaving every other
// status set of t.
func setStatus(ctx context.Context, pipe goredis.Pipeliner, t jobtype.Type, jID string, st job.Status) {
	for _, other := range job.Statuses {
		if other != st {
			pipe.SRem(ctx, statusKey(t, other), jID)
		}
	}
	pipe.SAdd(ctx, statusKey(t, st), jID)
}

func (s *Store) getByKey(ctx context.Context, key string) (*job.Envelope, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: get: %w", err)
	}
	if len(vals) == 0 {
		return nil, conductor.ErrNotFound
	}
	return mapToEnvelope(vals)
}

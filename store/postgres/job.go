package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// columns lists the persisted envelope fields in scan and bind order.
var columns = []string{
	"id", "type", "workspace_id", "created_by", "created_by_name", "name",
	"payload", "metadata", "priority", "attempts_made", "max_attempts",
	"backoff_type", "backoff_base", "backoff_max", "delay", "timeout",
	"status", "last_error", "run_at", "worker_id", "schedule",
	"processed_at", "finished_at", "heartbeat_at", "created_at", "updated_at",
}

var (
	selectColumns = strings.Join(columns, ", ")
	insertSQL     = buildInsert()
	updateSQL     = buildUpdate()
)

func buildInsert() string {
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return `INSERT INTO conductor_jobs (` + selectColumns + `, queue_seq)
		VALUES (` + strings.Join(params, ", ") + `, nextval('conductor_queue_seq'))`
}

// buildUpdate rewrites every column but id. Entering a queued status stamps
// a fresh queue sequence so the envelope goes to the back of its priority.
func buildUpdate() string {
	sets := make([]string, 0, len(columns))
	statusParam := ""
	for i, col := range columns[1:] {
		p := fmt.Sprintf("$%d", i+2)
		if col == "status" {
			statusParam = p
		}
		sets = append(sets, col+" = "+p)
	}
	return `UPDATE conductor_jobs SET ` + strings.Join(sets, ", ") + `,
		queue_seq = CASE WHEN ` + statusParam + `::text IN ('waiting', 'delayed')
			THEN nextval('conductor_queue_seq') ELSE queue_seq END
		WHERE id = $1`
}

// Enqueue persists a new waiting or delayed envelope.
func (s *Store) Enqueue(ctx context.Context, e *job.Envelope) error {
	if !e.Status.Queued() {
		return fmt.Errorf("%w: cannot enqueue %s envelope", conductor.ErrIllegalState, e.Status)
	}
	args, err := envelopeArgs(e)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertSQL, args...); err != nil {
		if isDuplicateKey(err) {
			return conductor.ErrJobAlreadyExists
		}
		return fmt.Errorf("conductor/postgres: enqueue: %w", err)
	}
	return nil
}

// Dequeue promotes due delayed envelopes of t, then claims the best ready
// one with SELECT FOR UPDATE SKIP LOCKED.
func (s *Store) Dequeue(ctx context.Context, t jobtype.Type) (*job.Envelope, error) {
	now := s.now()

	_, err := s.pool.Exec(ctx, `
		UPDATE conductor_jobs
		SET status = 'waiting', queue_seq = nextval('conductor_queue_seq'), updated_at = $2
		WHERE id IN (
			SELECT id FROM conductor_jobs
			WHERE type = $1 AND status = 'delayed' AND run_at <= $2
			ORDER BY run_at ASC
			FOR UPDATE SKIP LOCKED
		)`,
		t.String(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: promote delayed: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE conductor_jobs
		SET status = 'active', processed_at = $2, heartbeat_at = $2,
			finished_at = NULL, updated_at = $2
		WHERE id = (
			SELECT id FROM conductor_jobs
			WHERE type = $1 AND status = 'waiting'
			ORDER BY priority DESC, queue_seq ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+selectColumns,
		t.String(), now,
	)
	e, err := scanEnvelope(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("conductor/postgres: dequeue: %w", err)
	}
	return e, nil
}

// Get retrieves an envelope by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Envelope, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM conductor_jobs WHERE id = $1`,
		jobID.String(),
	)
	e, err := scanEnvelope(row)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: get: %w", err)
	}
	return e, nil
}

// Update persists an existing envelope. Queue membership follows the new
// status.
func (s *Store) Update(ctx context.Context, e *job.Envelope) error {
	args, err := envelopeArgs(e)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, updateSQL, args...)
	if err != nil {
		return fmt.Errorf("conductor/postgres: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conductor.ErrNotFound
	}
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

// Cancel marks a queued envelope cancelled in one conditional update, so a
// worker claiming it concurrently wins or loses cleanly.
func (s *Store) Cancel(ctx context.Context, jobID id.JobID) (*job.Envelope, error) {
	now := s.now()
	row := s.pool.QueryRow(ctx, `
		UPDATE conductor_jobs
		SET status = 'cancelled', finished_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('waiting', 'delayed')
		RETURNING `+selectColumns,
		jobID.String(), now,
	)
	e, err := scanEnvelope(row)
	if err == nil {
		return e, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("conductor/postgres: cancel: %w", err)
	}

	current, getErr := s.Get(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: job %s is %s", conductor.ErrIllegalState, jobID, current.Status)
}

// List returns envelopes of one workspace matching f, oldest first.
func (s *Store) List(ctx context.Context, f job.Filter) ([]*job.Envelope, error) {
	if f.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: list requires a workspace", conductor.ErrValidation)
	}

	query := `SELECT ` + selectColumns + ` FROM conductor_jobs WHERE workspace_id = $1`
	args := []interface{}{f.WorkspaceID}
	argIdx := 2

	if len(f.Types) > 0 {
		names := make([]string, len(f.Types))
		for i, t := range f.Types {
			names[i] = t.String()
		}
		query += fmt.Sprintf(" AND type = ANY($%d)", argIdx)
		args = append(args, names)
		argIdx++
	}
	if f.CreatedBy != "" {
		query += fmt.Sprintf(" AND created_by = $%d", argIdx)
		args = append(args, f.CreatedBy)
	}
	query += " ORDER BY created_at ASC, queue_seq ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: list: %w", err)
	}
	defer rows.Close()

	out, err := collectEnvelopes(rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = make([]*job.Envelope, 0)
	}
	return out, nil
}

// Counts returns status counts for t.
func (s *Store) Counts(ctx context.Context, t jobtype.Type) (job.QueueCounts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM conductor_jobs WHERE type = $1 GROUP BY status`,
		t.String(),
	)
	if err != nil {
		return job.QueueCounts{}, fmt.Errorf("conductor/postgres: counts: %w", err)
	}
	defer rows.Close()

	var c job.QueueCounts
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return job.QueueCounts{}, fmt.Errorf("conductor/postgres: scan counts: %w", err)
		}
		c.AddN(job.Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return job.QueueCounts{}, fmt.Errorf("conductor/postgres: iterate counts: %w", err)
	}
	return c, nil
}

// Heartbeat records liveness for an active envelope.
func (s *Store) Heartbeat(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conductor_jobs SET heartbeat_at = $2, worker_id = $3
		WHERE id = $1 AND status = 'active'`,
		jobID.String(), s.now(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("conductor/postgres: heartbeat: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, getErr := s.Get(ctx, jobID)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: heartbeat for %s job", conductor.ErrIllegalState, current.Status)
}

// Stale returns active envelopes of t that have not heartbeated within
// threshold.
func (s *Store) Stale(ctx context.Context, t jobtype.Type, threshold time.Duration) ([]*job.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM conductor_jobs
		WHERE type = $1 AND status = 'active'
		  AND COALESCE(heartbeat_at, processed_at) < $2`,
		t.String(), s.now().Add(-threshold),
	)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: stale: %w", err)
	}
	defer rows.Close()

	return collectEnvelopes(rows)
}

// envelopeArgs binds e in column order.
func envelopeArgs(e *job.Envelope) ([]interface{}, error) {
	metadata, err := marshalNullable(e.Metadata, len(e.Metadata) > 0)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: encode metadata: %w", err)
	}
	schedule, err := marshalNullable(e.Schedule, e.Schedule != nil)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: encode schedule: %w", err)
	}

	return []interface{}{
		e.ID.String(), e.Type.String(), e.WorkspaceID, e.CreatedBy, e.CreatedByName, e.Name,
		e.Payload, metadata, e.Priority, e.AttemptsMade, e.Retry.MaxAttempts,
		string(e.Retry.Backoff.Type), int64(e.Retry.Backoff.BaseDelay), int64(e.Retry.Backoff.MaxDelay),
		int64(e.Delay), int64(e.Timeout),
		string(e.Status), e.LastError, e.RunAt, e.WorkerID.String(), schedule,
		e.ProcessedAt, e.FinishedAt, e.HeartbeatAt, e.CreatedAt, e.UpdatedAt,
	}, nil
}

func marshalNullable(v any, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

// scanEnvelope scans a single row selected with selectColumns.
func scanEnvelope(row pgx.Row) (*job.Envelope, error) {
	var (
		e           job.Envelope
		idStr       string
		typeStr     string
		metadata    []byte
		backoffType string
		base        int64
		maxDelay    int64
		delay       int64
		timeout     int64
		status      string
		workerStr   string
		schedule    []byte
	)
	err := row.Scan(
		&idStr, &typeStr, &e.WorkspaceID, &e.CreatedBy, &e.CreatedByName, &e.Name,
		&e.Payload, &metadata, &e.Priority, &e.AttemptsMade, &e.Retry.MaxAttempts,
		&backoffType, &base, &maxDelay, &delay, &timeout,
		&status, &e.LastError, &e.RunAt, &workerStr, &schedule,
		&e.ProcessedAt, &e.FinishedAt, &e.HeartbeatAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: parse job id %q: %w", idStr, err)
	}
	e.Type, err = jobtype.Parse(typeStr)
	if err != nil {
		return nil, fmt.Errorf("conductor/postgres: job %s: %w", idStr, err)
	}
	if workerStr != "" {
		if parsed, workerErr := id.ParseWorkerID(workerStr); workerErr == nil {
			e.WorkerID = parsed
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("conductor/postgres: job %s metadata: %w", idStr, err)
		}
	}
	if len(schedule) > 0 {
		e.Schedule = new(job.Schedule)
		if err := json.Unmarshal(schedule, e.Schedule); err != nil {
			return nil, fmt.Errorf("conductor/postgres: job %s schedule: %w", idStr, err)
		}
	}

	e.Retry.Backoff = backoff.Policy{
		Type:      backoff.Type(backoffType),
		BaseDelay: time.Duration(base),
		MaxDelay:  time.Duration(maxDelay),
	}
	e.Delay = time.Duration(delay)
	e.Timeout = time.Duration(timeout)
	e.Status = job.Status(status)

	e.RunAt = e.RunAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// collectEnvelopes collects all envelopes from query rows.
func collectEnvelopes(rows pgx.Rows) ([]*job.Envelope, error) {
	var out []*job.Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("conductor/postgres: scan row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conductor/postgres: iterate rows: %w", err)
	}
	return out, nil
}

package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

func envelopeToMap(e *job.Envelope) map[string]interface{} {
	m := map[string]interface{}{
		"id":              e.ID.String(),
		"type":            e.Type.String(),
		"workspace_id":    e.WorkspaceID,
		"created_by":      e.CreatedBy,
		"created_by_name": e.CreatedByName,
		"name":            e.Name,
		"payload":         string(e.Payload),
		"priority":        strconv.Itoa(e.Priority),
		"attempts_made":   strconv.Itoa(e.AttemptsMade),
		"max_attempts":    strconv.Itoa(e.Retry.MaxAttempts),
		"backoff_type":    string(e.Retry.Backoff.Type),
		"backoff_base":    strconv.FormatInt(int64(e.Retry.Backoff.BaseDelay), 10),
		"backoff_max":     strconv.FormatInt(int64(e.Retry.Backoff.MaxDelay), 10),
		"delay":           strconv.FormatInt(int64(e.Delay), 10),
		"timeout":         strconv.FormatInt(int64(e.Timeout), 10),
		"status":          string(e.Status),
		"last_error":      e.LastError,
		"worker_id":       e.WorkerID.String(),
		"run_at":          e.RunAt.Format(time.RFC3339Nano),
		"created_at":      e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if len(e.Metadata) > 0 {
		m["metadata"] = marshalJSON(e.Metadata)
	}
	if e.Schedule != nil {
		m["schedule"] = marshalJSON(e.Schedule)
	}
	if e.ProcessedAt != nil {
		m["processed_at"] = e.ProcessedAt.Format(time.RFC3339Nano)
	}
	if e.FinishedAt != nil {
		m["finished_at"] = e.FinishedAt.Format(time.RFC3339Nano)
	}
	if e.HeartbeatAt != nil {
		m["heartbeat_at"] = e.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToEnvelope(m map[string]string) (*job.Envelope, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: parse job id: %w", err)
	}
	t, err := jobtype.Parse(m["type"])
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: job %s: %w", m["id"], err)
	}

	prio, _ := strconv.Atoi(m["priority"])                    //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts_made"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])         //nolint:errcheck // best-effort parse from trusted Redis data
	base, _ := strconv.ParseInt(m["backoff_base"], 10, 64)    //nolint:errcheck // best-effort parse from trusted Redis data
	maxDelay, _ := strconv.ParseInt(m["backoff_max"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	delay, _ := strconv.ParseInt(m["delay"], 10, 64)          //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)      //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &job.Envelope{
		Entity:        conductor.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:            jID,
		Type:          t,
		WorkspaceID:   m["workspace_id"],
		CreatedBy:     m["created_by"],
		CreatedByName: m["created_by_name"],
		Name:          m["name"],
		Payload:       []byte(m["payload"]),
		Priority:      prio,
		AttemptsMade:  attempts,
		Retry: job.RetryPolicy{
			Backoff: backoff.Policy{
				Type:      backoff.Type(m["backoff_type"]),
				BaseDelay: time.Duration(base),
				MaxDelay:  time.Duration(maxDelay),
			},
			MaxAttempts: maxAttempts,
		},
		Delay:     time.Duration(delay),
		Timeout:   time.Duration(timeout),
		Status:    job.Status(m["status"]),
		LastError: m["last_error"],
		RunAt:     runAt,
	}

	if wid := m["worker_id"]; wid != "" {
		e.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &e.Metadata) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["schedule"]; v != "" {
		var sched job.Schedule
		if json.Unmarshal([]byte(v), &sched) == nil {
			e.Schedule = &sched
		}
	}
	e.ProcessedAt = parseTime(m["processed_at"])
	e.FinishedAt = parseTime(m["finished_at"])
	e.HeartbeatAt = parseTime(m["heartbeat_at"])

	return e, nil
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

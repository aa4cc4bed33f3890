package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/priority"
)

// CreateRequest asks for a new job.
type CreateRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	WorkspaceID string            `json:"workspace_id"`
	Payload     json.RawMessage   `json:"payload"`
	Options     *Options          `json:"options,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Schedule    *ScheduleRequest  `json:"schedule,omitempty"`
}

// Options override the registry defaults for one job. Durations are in
// milliseconds.
type Options struct {
	Priority  string          `json:"priority,omitempty"`
	Attempts  int             `json:"attempts,omitempty"`
	Backoff   *BackoffOptions `json:"backoff,omitempty"`
	DelayMs   int64           `json:"delay,omitempty"`
	TimeoutMs int64           `json:"timeout,omitempty"`
}

// BackoffOptions override the registry backoff. Zero fields keep the
// registry value. Delays are in milliseconds.
type BackoffOptions struct {
	Type       string `json:"type,omitempty"`
	DelayMs    int64  `json:"delay,omitempty"`
	MaxDelayMs int64  `json:"max_delay,omitempty"`
}

// ScheduleRequest makes the job recurring.
type ScheduleRequest struct {
	Type     string     `json:"type"`
	Pattern  string     `json:"pattern"`
	Timezone string     `json:"timezone"`
	StartAt  *time.Time `json:"start_at,omitempty"`
	EndAt    *time.Time `json:"end_at,omitempty"`
}

// JobView is an envelope as seen by one caller.
type JobView struct {
	ID                id.JobID          `json:"id"`
	Name              string            `json:"name"`
	Type              jobtype.Type      `json:"type"`
	WorkspaceID       string            `json:"workspace_id"`
	CreatedBy         string            `json:"created_by"`
	CreatedByName     string            `json:"created_by_name,omitempty"`
	Status            job.Status        `json:"status"`
	Priority          int               `json:"priority"`
	AttemptsMade      int               `json:"attempts_made"`
	MaxAttempts       int               `json:"max_attempts"`
	AttemptsRemaining int               `json:"attempts_remaining"`
	Backoff           backoff.Policy    `json:"backoff"`
	LastError         string            `json:"last_error,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty"`
	Schedule          *job.Schedule     `json:"schedule,omitempty"`
	NextRunAt         *time.Time        `json:"next_run_at,omitempty"`

	CanRead   bool `json:"can_read"`
	CanCancel bool `json:"can_cancel"`
	CanRetry  bool `json:"can_retry"`
}

// SortField names a list ordering.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortPriority  SortField = "priority"
	SortName      SortField = "name"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Paging bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ListRequest filters and pages a job listing. An empty WorkspaceID means
// the caller's own workspace.
type ListRequest struct {
	WorkspaceID string       `json:"workspace_id,omitempty"`
	Types       []string     `json:"types,omitempty"`
	Statuses    []job.Status `json:"statuses,omitempty"`
	CreatedBy   string       `json:"created_by,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Offset      int          `json:"offset,omitempty"`
	SortBy      SortField    `json:"sort_by,omitempty"`
	SortOrder   SortOrder    `json:"sort_order,omitempty"`
}

// ListResult is one page of a listing. Total counts every match before
// paging; Counts covers every envelope the caller may read in the
// requested workspace and types, regardless of the status filter.
type ListResult struct {
	Jobs   []*JobView      `json:"jobs"`
	Total  int             `json:"total"`
	Counts job.QueueCounts `json:"counts"`
}

// ActionResult is the outcome of a cancel or retry.
type ActionResult struct {
	JobID             string     `json:"job_id"`
	Success           bool       `json:"success"`
	Status            job.Status `json:"status,omitempty"`
	AttemptsRemaining int        `json:"attempts_remaining,omitempty"`
	Error             string     `json:"error,omitempty"`
	err               error
}

// Err returns the error behind a failed bulk item.
func (r ActionResult) Err() error { return r.err }

// BulkResult aggregates per-id outcomes in request order.
type BulkResult struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ActionResult `json:"results"`
}

// WorkspaceQuota bounds one workspace. Zero values are unlimited.
type WorkspaceQuota struct {
	MaxActiveJobs int            `json:"max_active_jobs"`
	MaxQueuedJobs int            `json:"max_queued_jobs"`
	PriorityTier  priority.Level `json:"priority_tier"`
}

// QuotaProvider supplies per-workspace limits from the tenancy tier.
type QuotaProvider interface {
	Quota(ctx context.Context, workspaceID string) (WorkspaceQuota, error)
}

// StaticQuotas serves fixed quotas by workspace ID, falling back to
// Default.
type StaticQuotas struct {
	Default    WorkspaceQuota
	Workspaces map[string]WorkspaceQuota
}

// Quota implements QuotaProvider.
func (s StaticQuotas) Quota(_ context.Context, workspaceID string) (WorkspaceQuota, error) {
	if q, ok := s.Workspaces[workspaceID]; ok {
		return q, nil
	}
	return s.Default, nil
}

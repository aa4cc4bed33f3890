package job

import (
	"context"
	"time"

	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/jobtype"
)

// Filter selects envelopes for listing. WorkspaceID is required: stores
// never return envelopes across workspaces.
type Filter struct {
	WorkspaceID string
	// Types restricts the union to these types. Empty means all types.
	Types []jobtype.Type
	// CreatedBy restricts to one creator. Empty means any.
	CreatedBy string
}

// Store is the durable queue primitive. Every method must be safe for
// concurrent use by many worker pools and processes.
type Store interface {
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Enqueue persists a new envelope and places it in its type's queue:
	// ready when Status is waiting, time-ordered when delayed. Returns
	// conductor.ErrJobAlreadyExists for a duplicate ID.
	Enqueue(ctx context.Context, e *Envelope) error

	// Dequeue first promotes due delayed envelopes of type t to waiting,
	// then atomically claims the highest-priority ready envelope (FIFO
	// within a priority), marks it active and returns it. It returns
	// (nil, nil) when nothing is ready. No two callers may claim the same
	// envelope.
	Dequeue(ctx context.Context, t jobtype.Type) (*Envelope, error)

	// Get retrieves an envelope by ID or returns conductor.ErrNotFound.
	Get(ctx context.Context, jobID id.JobID) (*Envelope, error)

	// Update persists field changes of an envelope that is not queued.
	Update(ctx context.Context, e *Envelope) error

	// Requeue persists an existing envelope and places it back in its
	// queue according to its Status (waiting or delayed).
	Requeue(ctx context.Context, e *Envelope) error

	// Cancel atomically removes a waiting or delayed envelope from its
	// queue and marks it cancelled. Returns conductor.ErrIllegalState if
	// the envelope is in any other status, including when a worker claimed
	// it first.
	Cancel(ctx context.Context, jobID id.JobID) (*Envelope, error)

	// List returns every envelope matching f, in no particular order.
	List(ctx context.Context, f Filter) ([]*Envelope, error)

	// Counts returns the status counts for type t.
	Counts(ctx context.Context, t jobtype.Type) (QueueCounts, error)

	// Heartbeat records liveness for an active envelope.
	Heartbeat(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// Stale returns active envelopes of type t whose last heartbeat (or
	// processing start) is older than threshold.
	Stale(ctx context.Context, t jobtype.Type, threshold time.Duration) ([]*Envelope, error)
}

package engine

import (
	"context"
	"log/slog"

	"github.com/xraph/conductor/health"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/queue"
	"github.com/xraph/conductor/worker"
)

var _ health.Operator = (*queueOperator)(nil)

// queueOperator executes health pause requests against the local queue
// gates. Running attempts are never preempted.
type queueOperator struct {
	queues *queue.Manager
	pools  map[jobtype.Type]*worker.Pool
	logger *slog.Logger
}

func (o *queueOperator) RequestPause(_ context.Context, t jobtype.Type, reason string) error {
	q := jobtype.MustLookup(t).Queue
	o.queues.Pause(q)
	o.logger.Warn("queue paused",
		slog.String("queue", q),
		slog.String("reason", reason),
	)
	return nil
}

func (o *queueOperator) RequestResume(_ context.Context, t jobtype.Type) error {
	q := jobtype.MustLookup(t).Queue
	o.queues.Resume(q)
	if p, ok := o.pools[t]; ok {
		p.Notify()
	}
	o.logger.Info("queue resumed", slog.String("queue", q))
	return nil
}

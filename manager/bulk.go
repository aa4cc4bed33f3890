package manager

import (
	"context"

	"github.com/xraph/conductor/access"
)

// BulkCancelJobs cancels each id independently. A failure on one id never
// stops the others.
func (m *Manager) BulkCancelJobs(ctx context.Context, jobIDs []string, u access.User) *BulkResult {
	return m.bulk(ctx, jobIDs, u, m.CancelJob)
}

// BulkRetryJobs retries each id independently. A failure on one id never
// stops the others.
func (m *Manager) BulkRetryJobs(ctx context.Context, jobIDs []string, u access.User) *BulkResult {
	return m.bulk(ctx, jobIDs, u, m.RetryJob)
}

func (m *Manager) bulk(
	ctx context.Context,
	jobIDs []string,
	u access.User,
	op func(context.Context, string, access.User) (*ActionResult, error),
) *BulkResult {
	out := &BulkResult{Results: make([]ActionResult, 0, len(jobIDs))}
	for _, jobID := range jobIDs {
		res, err := op(ctx, jobID, u)
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, ActionResult{JobID: jobID, Error: err.Error(), err: err})
			continue
		}
		out.Succeeded++
		out.Results = append(out.Results, *res)
	}
	return out
}

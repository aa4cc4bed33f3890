package middleware

import (
	"context"

	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/scope"
)

// Scope returns middleware that puts the envelope's workspace on the
// context as a forge organisation scope under appID.
func Scope(appID string) Middleware {
	return func(ctx context.Context, e *job.Envelope, next Handler) error {
		return next(scope.Restore(ctx, appID, e.WorkspaceID))
	}
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/job"
)

type handlerGroupKey struct{}

// WithHandlerGroup returns a context whose Timeout middleware registers
// every handler goroutine it starts in wg. Waiting on wg after the
// attempt returns covers handlers that outlived their deadline.
func WithHandlerGroup(ctx context.Context, wg *sync.WaitGroup) context.Context {
	return context.WithValue(ctx, handlerGroupKey{}, wg)
}

func handlerGroup(ctx context.Context) *sync.WaitGroup {
	wg, _ := ctx.Value(handlerGroupKey{}).(*sync.WaitGroup)
	return wg
}

// Timeout returns middleware that enforces the envelope's per-attempt
// deadline. The handler runs on its own goroutine so the attempt ends at
// the deadline even when the handler ignores its context; the result is
// an error wrapping conductor.ErrTimeout, which the retry engine treats
// as transient. A handler that ignores cancellation keeps running until
// it returns; callers that must account for it pass a group through
// WithHandlerGroup.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e *job.Envelope, next Handler) error {
		if e.Timeout <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, e.Timeout)
		defer cancel()

		wg := handlerGroup(ctx)
		if wg != nil {
			wg.Add(1)
		}
		done := make(chan error, 1)
		go func() {
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = panicError(e, r)
					}
				}()
				return next(ctx)
			}()
			if wg != nil {
				wg.Done()
			}
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s: %w", conductor.ErrTimeout, e.Timeout, err)
			}
			return err
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			logger.Warn("job attempt timed out",
				slog.String("job_id", e.ID.String()),
				slog.String("job_type", e.Type.String()),
				slog.Duration("timeout", e.Timeout),
			)
			return fmt.Errorf("%w after %s", conductor.ErrTimeout, e.Timeout)
		}
	}
}

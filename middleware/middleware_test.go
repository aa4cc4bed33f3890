package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	"github.com/xraph/conductor/middleware"
)

func envelope(name string) *job.Envelope {
	return &job.Envelope{ID: id.NewJobID(), Name: name, Type: jobtype.Custom, WorkspaceID: "ws_1"}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Envelope, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.Envelope, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), envelope("test"), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), envelope("empty"), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *job.Envelope, next middleware.Handler) error {
		return next(ctx)
	}
	want := errors.New("handler error")

	err := middleware.Chain(pass)(context.Background(), envelope("err"), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	err := mw(context.Background(), envelope("panicky"), func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in custom job panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
	if conductor.IsPermanent(err) {
		t.Error("panics should stay retryable")
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	err := mw(context.Background(), envelope("normal"), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	want := errors.New("fail")

	err := middleware.Logging(logger)(context.Background(), envelope("log-test"), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	out := buf.String()
	for _, s := range []string{"job started", "job attempt failed", "workspace_id=ws_1", "attempt=1"} {
		if !strings.Contains(out, s) {
			t.Errorf("log output missing %q:\n%s", s, out)
		}
	}
}

func TestScope_RestoresWorkspace(t *testing.T) {
	mw := middleware.Scope("conductor")

	err := mw(context.Background(), envelope("scoped"), func(ctx context.Context) error {
		s, ok := forge.ScopeFrom(ctx)
		if !ok {
			t.Fatal("expected scope in context")
		}
		if got := s.AppID(); got != "conductor" {
			t.Errorf("AppID = %q, want %q", got, "conductor")
		}
		if got := s.OrgID(); got != "ws_1" {
			t.Errorf("OrgID = %q, want %q", got, "ws_1")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_NoDeadlinePassesThrough(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	err := mw(context.Background(), envelope("no-timeout"), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_HandlerIgnoringContext(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	e := envelope("stuck")
	e.Timeout = 20 * time.Millisecond

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := mw(context.Background(), e, func(_ context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, conductor.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if conductor.IsPermanent(err) {
		t.Error("timeouts must be transient")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("attempt was not cut off at the deadline: %v", elapsed)
	}
}

func TestTimeout_HandlerGroupCoversDetachedHandler(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	e := envelope("stuck")
	e.Timeout = 10 * time.Millisecond

	var handlers sync.WaitGroup
	ctx := middleware.WithHandlerGroup(context.Background(), &handlers)

	release := make(chan struct{})
	var returned atomic.Bool
	err := mw(ctx, e, func(context.Context) error {
		<-release
		returned.Store(true)
		return nil
	})
	if !errors.Is(err, conductor.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	close(release)
	handlers.Wait()
	if !returned.Load() {
		t.Fatal("group released before the handler returned")
	}
}

func TestTimeout_HandlerHonouringContext(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	e := envelope("polite")
	e.Timeout = 10 * time.Millisecond

	err := mw(context.Background(), e, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, conductor.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTimeout_FastHandler(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	e := envelope("fast")
	e.Timeout = time.Second
	want := errors.New("boom")

	err := mw(context.Background(), e, func(_ context.Context) error { return want })
	if !errors.Is(err, want) || errors.Is(err, conductor.ErrTimeout) {
		t.Fatalf("expected handler error unchanged, got %v", err)
	}
}

func TestTimeout_RecoversPanicInHandlerGoroutine(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	e := envelope("panics")
	e.Timeout = time.Second

	err := mw(context.Background(), e, func(_ context.Context) error { panic("kaboom") })
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected panic error, got %v", err)
	}
}

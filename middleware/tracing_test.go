package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
	mw "github.com/xraph/conductor/middleware"
)

func webhookJob() *job.Envelope {
	return &job.Envelope{
		ID:           id.NewJobID(),
		Name:         "deliver order webhook",
		Type:         jobtype.WebhookDelivery,
		WorkspaceID:  "ws_456",
		Priority:     20,
		AttemptsMade: 2,
		Retry:        job.RetryPolicy{MaxAttempts: 5},
	}
}

// traceOnce runs one attempt through the tracing middleware and returns the
// single ended span.
func traceOnce(t *testing.T, e *job.Envelope, handler mw.Handler) sdktrace.ReadOnlySpan {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	_ = mw.TracingWithTracer(tp.Tracer("test"))(context.Background(), e, handler) //nolint:errcheck // asserted via span

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	return spans[0]
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, a := range s.Attributes() {
		out[a.Key] = a.Value
	}
	return out
}

func TestTracing_DescribesAttempt(t *testing.T) {
	e := webhookJob()
	span := traceOnce(t, e, func(context.Context) error { return nil })

	if span.Name() != "conductor.job.execute" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindInternal {
		t.Errorf("span kind = %v", span.SpanKind())
	}

	attrs := spanAttrs(span)
	wantStr := map[attribute.Key]string{
		"conductor.job.id":       e.ID.String(),
		"conductor.job.name":     "deliver order webhook",
		"conductor.job.type":     "webhook_delivery",
		"conductor.queue":        "webhook-delivery",
		"conductor.workspace_id": "ws_456",
	}
	for k, want := range wantStr {
		if got := attrs[k].AsString(); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	// The attempt number is 1-based: two made means this is the third.
	if got := attrs["conductor.attempt"].AsInt64(); got != 3 {
		t.Errorf("conductor.attempt = %d, want 3", got)
	}
	if got := attrs["conductor.priority"].AsInt64(); got != 20 {
		t.Errorf("conductor.priority = %d, want 20", got)
	}
}

func TestTracing_QueueFollowsType(t *testing.T) {
	for _, typ := range jobtype.All {
		t.Run(typ.String(), func(t *testing.T) {
			e := webhookJob()
			e.Type = typ
			span := traceOnce(t, e, func(context.Context) error { return nil })
			if got, want := spanAttrs(span)["conductor.queue"].AsString(), jobtype.MustLookup(typ).Queue; got != want {
				t.Errorf("queue = %q, want %q", got, want)
			}
		})
	}
}

func TestTracing_Status(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  codes.Code
		exception bool
	}{
		{"success", nil, codes.Ok, false},
		{"handler error", errors.New("upstream returned 502"), codes.Error, true},
		{"timeout", fmt.Errorf("%w: attempt exceeded 30s", conductor.ErrTimeout), codes.Error, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span := traceOnce(t, webhookJob(), func(context.Context) error { return tt.err })

			if span.Status().Code != tt.wantCode {
				t.Fatalf("status = %v, want %v", span.Status().Code, tt.wantCode)
			}
			if tt.err != nil && span.Status().Description != tt.err.Error() {
				t.Errorf("description = %q", span.Status().Description)
			}
			recorded := false
			for _, ev := range span.Events() {
				if ev.Name == "exception" {
					recorded = true
				}
			}
			if recorded != tt.exception {
				t.Errorf("exception event recorded = %v, want %v", recorded, tt.exception)
			}
		})
	}
}

func TestTracing_HandlerSeesSpan(t *testing.T) {
	var inner trace.SpanContext
	span := traceOnce(t, webhookJob(), func(ctx context.Context) error {
		inner = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	if !inner.IsValid() {
		t.Fatal("handler context carries no span")
	}
	if inner.SpanID() != span.SpanContext().SpanID() {
		t.Error("handler span is not the attempt span")
	}
}

func TestTracing_GlobalProviderIsNoopSafe(t *testing.T) {
	called := false
	err := mw.Tracing()(context.Background(), webhookJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

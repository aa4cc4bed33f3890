package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// tracerName is the instrumentation scope name for conductor tracing.
const tracerName = "github.com/xraph/conductor"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span using the global TracerProvider.
//
// Span attributes: conductor.job.id, conductor.job.name,
// conductor.job.type, conductor.queue, conductor.workspace_id,
// conductor.attempt, conductor.priority.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, e *job.Envelope, next Handler) error {
		ctx, span := tracer.Start(ctx, "conductor.job.execute",
			trace.WithAttributes(
				attribute.String("conductor.job.id", e.ID.String()),
				attribute.String("conductor.job.name", e.Name),
				attribute.String("conductor.job.type", e.Type.String()),
				attribute.String("conductor.queue", queueName(e.Type)),
				attribute.String("conductor.workspace_id", e.WorkspaceID),
				attribute.Int("conductor.attempt", e.AttemptsMade+1),
				attribute.Int("conductor.priority", e.Priority),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

func queueName(t jobtype.Type) string {
	if spec, ok := jobtype.Lookup(t); ok {
		return spec.Queue
	}
	return t.String()
}

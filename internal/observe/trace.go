package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Talim tracer.
const tracerName = "github.com/talimhq/talim"

// Tracer returns the Talim [trace.Tracer] from the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the Talim tracer. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartTurnSpan starts the span that covers one simulation turn, from
// capture stop to the start of reply presentation. The thread id and
// simulation name are attached so a trace can be matched to the persisted
// history row.
func StartTurnSpan(ctx context.Context, threadID, simulation string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.turn",
		trace.WithAttributes(
			attribute.String("talim.thread_id", threadID),
			attribute.String("talim.simulation", simulation),
		),
	)
}

// CorrelationID returns the trace id of the active span in ctx, or "" when
// there is none. It doubles as the client-visible request id in HTTP
// responses and logs.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with trace_id and span_id from
// ctx, or unchanged when no span is active.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

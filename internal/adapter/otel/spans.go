package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "warden"

// StartRunSpan starts a span covering one full run.
func StartRunSpan(ctx context.Context, runID, task string, backendKind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.task", task),
			attribute.String("run.backend", backendKind),
		),
	)
}

// StartStepSpan starts a span for one protocol step within a run.
func StartStepSpan(ctx context.Context, runID, step string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.name", step),
		),
	)
}

// StartToolCallSpan starts a span for one agent tool call.
func StartToolCallSpan(ctx context.Context, runID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("toolcall.tool", tool),
		),
	)
}

package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with pipeline span helpers.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartJob starts the root span of one pipeline run.
func (t *Tracer) StartJob(ctx context.Context, jobID, runID string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "pdfprep.job", trace.WithAttributes(
		JobIDAttr(jobID),
		attribute.String("pdfprep.run_id", runID),
	))
}

// StartStage starts a child span for a pipeline stage.
func (t *Tracer) StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "pdfprep.stage."+stage, trace.WithAttributes(StageAttr(stage)))
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for transcription batches.
	TracerName = "scribe"
)

// Span attribute keys
const (
	AttrRunID       = "run_id"
	AttrInputDir    = "input_dir"
	AttrFile        = "file"
	AttrFileIndex   = "file_index"
	AttrTotalFiles  = "total_files"
	AttrStage       = "stage"
	AttrModel       = "model"
	AttrFragments   = "fragments"
	AttrTurns       = "turns"
	AttrRecords     = "records"
	AttrDesignated  = "designated_speaker"
	AttrErrorCode   = "error_code"
	AttrRetryable   = "retryable"
	AttrOutputPath  = "output_path"
	AttrPolicy      = "role_policy"
	AttrDroppedFrag = "fragments_dropped"
)

// Span names
const (
	SpanBatch = "scribe.batch"
	SpanFile  = "scribe.file"
)

// Tracer starts spans for batch runs, files and stages.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider (no-op unless an SDK is installed).
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartBatchSpan starts the root span of a run.
func (t *Tracer) StartBatchSpan(ctx context.Context, runID, inputDir, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanBatch,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrInputDir, inputDir),
			attribute.String(AttrModel, model),
		),
	)
}

// StartFileSpan starts a span for one audio file.
func (t *Tracer) StartFileSpan(ctx context.Context, file string, index, total int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanFile,
		trace.WithAttributes(
			attribute.String(AttrFile, file),
			attribute.Int(AttrFileIndex, index),
			attribute.Int(AttrTotalFiles, total),
		),
	)
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("scribe.stage.%s", stage),
		trace.WithAttributes(attribute.String(AttrStage, stage)),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetAttribution records the alignment outcome on the span.
func (h *SpanHelper) SetAttribution(fragments, turns, records, dropped int, policy, designated string) {
	h.span.SetAttributes(
		attribute.Int(AttrFragments, fragments),
		attribute.Int(AttrTurns, turns),
		attribute.Int(AttrRecords, records),
		attribute.Int(AttrDroppedFrag, dropped),
		attribute.String(AttrPolicy, policy),
		attribute.String(AttrDesignated, designated),
	)
}

// SetOutput records a written file.
func (h *SpanHelper) SetOutput(path string) {
	h.span.AddEvent("exported", trace.WithAttributes(attribute.String(AttrOutputPath, path)))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, code string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

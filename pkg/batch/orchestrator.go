package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	"github.com/otherjamesbrown/interview-scribe/pkg/engines"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
	"github.com/otherjamesbrown/interview-scribe/pkg/events"
	"github.com/otherjamesbrown/interview-scribe/pkg/export"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
	"github.com/otherjamesbrown/interview-scribe/pkg/observability"
)

// Per-file progress checkpoints, as fractions of the file's share.
// Exporters split the remainder evenly after attribution.
const (
	fractionTranscribed = 0.4
	fractionDiarized    = 0.6
	fractionAttributed  = 0.8

	// percentReady is reported once the engines are ready, before discovery.
	percentReady = 5
)

// Config configures the orchestrator.
type Config struct {
	AudioExtensions []string
	OutputDir       string
	Marker          string
	Language        string
	Formats         []string
	Labels          export.Labels
}

// Request starts one batch run.
type Request struct {
	InputDir     string
	TemplatePath string
	// Model overrides the recognizer model for this run.
	Model string
}

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeNoInput      Outcome = "no_input"
	OutcomeAllProcessed Outcome = "all_processed"
	OutcomeFailed       Outcome = "failed"
	OutcomeAborted      Outcome = "aborted"
)

// Result contains the result of a batch run.
type Result struct {
	RunID       string
	Outcome     Outcome
	Candidates  int
	Skipped     []string
	Transcribed []string
	Outputs     []string
	StartedAt   time.Time
	CompletedAt time.Time
	Err         *scerrors.PipelineError
}

// EventPublisher mirrors batch messages to an external bus.
type EventPublisher interface {
	PublishMessage(ctx context.Context, params events.MessageParams) error
	PublishCompleted(ctx context.Context, params events.CompletedParams) error
}

// Dependencies are the collaborators of an Orchestrator.
// Transcriber and Diarizer are required; the rest are optional.
type Dependencies struct {
	Transcriber engines.Transcriber
	Diarizer    engines.Diarizer
	Pipeline    *attribution.Pipeline
	Logger      logging.Logger
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
	Publisher   EventPublisher
}

// Orchestrator runs batches strictly sequentially, one file at a time.
// Any per-file failure aborts the whole batch.
type Orchestrator struct {
	cfg  Config
	deps Dependencies

	mu       sync.Mutex
	progress *Progress
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies) *Orchestrator {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if len(cfg.AudioExtensions) == 0 {
		cfg.AudioExtensions = DefaultAudioExtensions
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.Labels == (export.Labels{}) {
		cfg.Labels = export.DefaultLabels()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = attribution.NewPipeline(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger(&logging.Config{Level: logging.LevelInfo, ServiceName: "scribe", Output: io.Discard})
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	deps.Logger = deps.Logger.With(logging.F("component", "batch_orchestrator"))

	return &Orchestrator{cfg: cfg, deps: deps, progress: NewProgress()}
}

// OutputDir returns the folder transcripts are written to.
func (o *Orchestrator) OutputDir() string {
	return o.cfg.OutputDir
}

// DiscoverOptions returns the discovery settings used by Run.
func (o *Orchestrator) DiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		AudioExtensions:  o.cfg.AudioExtensions,
		Marker:           o.cfg.Marker,
		OutputExtensions: export.KnownExtensions(),
	}
}

// Progress returns a snapshot of the current or last run.
func (o *Orchestrator) Progress() ProgressSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress.Snapshot()
}

// Run executes one batch and reports to mb. Exactly one terminal message
// (done or error) is sent, followed by a final log line. The returned error
// is the classified failure for failed or aborted runs.
func (o *Orchestrator) Run(ctx context.Context, req Request, mb *Mailbox) (*Result, error) {
	if mb == nil {
		mb = NewMailbox()
	}

	runID := uuid.New().String()
	ctx = context.WithValue(ctx, logging.RunIDKey, runID)

	progress := NewProgress()
	o.mu.Lock()
	o.progress = progress
	o.mu.Unlock()

	// Warnings and errors logged during the run are mirrored to the observer.
	runLogger := o.deps.Logger.WithSink(logging.NewLevelSink(logging.LevelWarn, NewMailboxSink(mb))).WithContext(ctx)
	r := &run{
		o:        o,
		req:      req,
		progress: progress,
		result:   &Result{RunID: runID, StartedAt: time.Now()},
		rep:      newReporter(ctx, runID, mb, o.deps.Publisher, runLogger),
		logger:   runLogger,
		base:     o.deps.Logger.WithContext(ctx),
	}

	ctx, span := o.deps.Tracer.StartBatchSpan(ctx, runID, req.InputDir, req.Model)
	defer span.End()

	r.execute(ctx)

	r.result.CompletedAt = time.Now()
	o.deps.Metrics.RecordBatch(string(r.result.Outcome))
	if r.result.Err != nil {
		observability.NewSpanHelper(span).SetError(r.result.Err, string(r.result.Err.Code), scerrors.IsErrorRetryable(r.result.Err))
	} else {
		observability.NewSpanHelper(span).SetSuccess()
	}
	r.publishCompleted(ctx)
	r.rep.log("Worker finished.")

	if r.result.Err != nil {
		return r.result, r.result.Err
	}
	return r.result, nil
}

// run holds the state of one Run call.
type run struct {
	o        *Orchestrator
	req      Request
	progress *Progress
	result   *Result
	rep      *reporter
	logger   logging.Logger
	// base is not mirrored to the observer.
	base logging.Logger

	transcriber engines.Transcriber
	exporters   []export.Exporter
}

func (r *run) execute(ctx context.Context) {
	cfg := r.o.cfg

	r.rep.log(fmt.Sprintf("Worker started (PID: %d)", os.Getpid()))
	r.rep.log("Audio folder: " + absPath(r.req.InputDir))
	if r.req.TemplatePath != "" {
		r.rep.log("DOCX template: " + absPath(r.req.TemplatePath))
	} else {
		r.rep.log("DOCX template: none (basic document)")
	}
	r.transcriber = r.o.deps.Transcriber
	if sel, ok := r.transcriber.(engines.ModelSelector); ok && r.req.Model != "" {
		r.transcriber = sel.WithModel(r.req.Model)
	}
	if r.req.Model != "" {
		r.rep.log("Model: " + r.req.Model)
	}
	r.base.Info("Batch started",
		logging.F("input_dir", r.req.InputDir),
		logging.F("output_dir", cfg.OutputDir),
		logging.F("model", r.req.Model))

	if err := ValidateRequest(r.req); err != nil {
		r.fail(scerrors.ClassifyError(err, scerrors.StageDiscover))
		return
	}
	exporters, err := export.New(cfg.Formats, cfg.Labels, r.req.TemplatePath)
	if err != nil {
		r.fail(scerrors.ClassifyError(err, scerrors.StageExport))
		return
	}
	r.exporters = exporters

	r.rep.log("Checking transcription engines...")
	if err := r.transcriber.Ready(ctx); err != nil {
		r.fail(scerrors.ClassifyError(err, scerrors.StageTranscribe))
		return
	}
	if err := r.o.deps.Diarizer.Ready(ctx); err != nil {
		r.fail(scerrors.ClassifyError(err, scerrors.StageDiarize))
		return
	}
	r.rep.progress(r.progress.SetPercent(percentReady))
	r.rep.log("Engines ready")

	r.progress.SetState(StateDiscovering)
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		r.fail(scerrors.ClassifyError(fmt.Errorf("creating output folder: %w", err), scerrors.StageDiscover))
		return
	}

	r.rep.log("Checking for already transcribed files...")
	plan, err := Discover(r.req.InputDir, cfg.OutputDir, r.o.DiscoverOptions())
	if err != nil {
		r.fail(scerrors.ClassifyError(err, scerrors.StageDiscover))
		return
	}
	r.result.Candidates = len(plan.Candidates)
	r.result.Skipped = plan.Skipped
	r.o.deps.Metrics.RecordFiles(observability.StatusSkipped, len(plan.Skipped))

	if len(plan.Candidates) == 0 {
		r.finish(OutcomeNoInput, "No compatible audio files found in the folder.")
		return
	}
	if len(plan.Pending) == 0 {
		r.finish(OutcomeAllProcessed, "All audio files in the folder have already been transcribed!")
		return
	}

	r.progress.Plan(len(plan.Pending), len(plan.Skipped))
	r.rep.log(fmt.Sprintf("Scan finished. %d of %d audio files will be processed.", len(plan.Pending), len(plan.Candidates)))

	for i, name := range plan.Pending {
		if err := ctx.Err(); err != nil {
			r.fail(scerrors.ClassifyError(err, scerrors.StageDiscover).WithFile(name))
			return
		}
		if pe := r.processFileSafe(ctx, name, i, len(plan.Pending)); pe != nil {
			r.o.deps.Metrics.RecordFile(observability.StatusFailed)
			r.fail(pe)
			return
		}
		r.o.deps.Metrics.RecordFile(observability.StatusTranscribed)
		r.result.Transcribed = append(r.result.Transcribed, name)
	}

	r.finish(OutcomeCompleted, "Transcription completed for all files!")
}

// processFileSafe is the per-file failure boundary: errors and panics are
// classified, tagged with the file, and given a diagnostic trace.
func (r *run) processFileSafe(ctx context.Context, name string, index, total int) (pe *scerrors.PipelineError) {
	defer func() {
		if rec := recover(); rec != nil {
			pe = &scerrors.PipelineError{
				Code:    scerrors.ErrProcessingError,
				Stage:   stageOf(r.progress.Snapshot().State),
				File:    name,
				Message: fmt.Sprint(rec),
				Trace:   string(debug.Stack()),
			}
		}
	}()

	err := r.processFile(ctx, name, index, total)
	if err == nil {
		return nil
	}
	pe = scerrors.ClassifyError(err, scerrors.StageAttribute).WithFile(name)
	if pe.Trace == "" {
		pe.WithTrace(string(debug.Stack()))
	}
	return pe
}

func (r *run) processFile(ctx context.Context, name string, index, total int) error {
	cfg := r.o.cfg

	// A file only counts as transcribed once every format is on disk, so
	// outputs written before a failure, panic or cancellation are removed.
	var written []string
	committed := false
	defer func() {
		if !committed {
			r.discardOutputs(written)
		}
	}()
	ctx = context.WithValue(ctx, logging.FileKey, name)
	logger := r.logger.WithContext(ctx)
	audioPath := filepath.Join(r.req.InputDir, name)

	ctx, span := r.o.deps.Tracer.StartFileSpan(ctx, name, index+1, total)
	defer span.End()

	r.progress.StartFile(name)
	r.rep.log(fmt.Sprintf("Processing %s (%d/%d)...", name, index+1, total))

	// Recognition
	r.progress.SetState(StateTranscribing)
	r.rep.log("  - Transcribing audio...")
	var fragments []attribution.Fragment
	if err := r.stage(ctx, scerrors.StageTranscribe, func(ctx context.Context) (err error) {
		fragments, err = r.transcriber.Transcribe(ctx, audioPath, cfg.Language)
		return err
	}); err != nil {
		return err
	}
	r.rep.progress(r.progress.Checkpoint(fractionTranscribed))
	r.rep.log(fmt.Sprintf("  - Transcription finished, %d segments detected.", len(fragments)))

	// Diarization
	r.progress.SetState(StateDiarizing)
	r.rep.log("  - Diarizing audio (identifying speakers)...")
	var turns []attribution.Turn
	if err := r.stage(ctx, scerrors.StageDiarize, func(ctx context.Context) (err error) {
		turns, err = r.o.deps.Diarizer.Diarize(ctx, audioPath)
		return err
	}); err != nil {
		return err
	}
	r.rep.progress(r.progress.Checkpoint(fractionDiarized))
	r.rep.log(fmt.Sprintf("  - Diarization finished, %d speaker turns.", len(turns)))

	// Attribution
	r.progress.SetState(StateAligning)
	r.rep.log("  - Assigning text to speakers and post-processing...")
	var (
		final   []attribution.FinalRecord
		summary attribution.Summary
	)
	if err := r.stage(ctx, scerrors.StageAttribute, func(ctx context.Context) (err error) {
		final, summary, err = r.o.deps.Pipeline.Run(fragments, turns)
		return err
	}); err != nil {
		return err
	}
	r.o.deps.Metrics.RecordAlignment(summary.Align.DroppedNoOverlap, summary.Align.DroppedBlank, len(final))
	observability.NewSpanHelper(span).SetAttribution(len(fragments), len(turns), summary.Align.Attributed,
		summary.Align.Dropped(), summary.Policy, summary.Designated)
	r.base.Info("Attribution finished",
		logging.F("fragments", len(fragments)),
		logging.F("turns", len(turns)),
		logging.F("dropped", summary.Align.Dropped()),
		logging.F("designated", summary.Designated),
		logging.F("final_records", len(final)))
	if len(final) == 0 {
		logger.Warn(fmt.Sprintf("No speech could be attributed in %s, the transcript is empty", name))
	}
	r.rep.progress(r.progress.Checkpoint(fractionAttributed))
	r.rep.log(fmt.Sprintf("  - Post-processing finished, %d final segments.", len(final)))

	// Export
	r.progress.SetState(StateExporting)
	share := (1 - fractionAttributed) / float64(len(r.exporters))
	for j, e := range r.exporters {
		dest := filepath.Join(cfg.OutputDir, OutputName(name, cfg.Marker, e.Extension()))
		r.rep.log(exportBanner(e, r.req.TemplatePath))
		if err := r.stage(ctx, scerrors.StageExport, func(ctx context.Context) error {
			return e.Export(ctx, final, dest)
		}); err != nil {
			return err
		}
		written = append(written, dest)
		observability.NewSpanHelper(span).SetOutput(dest)
		r.rep.progress(r.progress.Checkpoint(fractionAttributed + share*float64(j+1)))
		r.rep.log(fmt.Sprintf("%s generated: %s", strings.ToUpper(e.Name()), absPath(dest)))
	}

	committed = true
	r.result.Outputs = append(r.result.Outputs, written...)
	r.progress.CompleteFile()
	observability.NewSpanHelper(span).SetSuccess()
	return nil
}

func (r *run) discardOutputs(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.base.Warn("Could not remove partial output", logging.F("path", p), logging.Err(err))
			continue
		}
		r.base.Debug("Removed partial output", logging.F("path", p))
	}
}

// stageOf maps a progress state to the pipeline stage it runs.
func stageOf(s State) string {
	switch s {
	case StateTranscribing:
		return scerrors.StageTranscribe
	case StateDiarizing:
		return scerrors.StageDiarize
	case StateAligning:
		return scerrors.StageAttribute
	case StateExporting:
		return scerrors.StageExport
	default:
		return scerrors.StageDiscover
	}
}

// stage runs one pipeline stage under its own span and latency metric.
func (r *run) stage(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	ctx, span := r.o.deps.Tracer.StartStageSpan(ctx, stage)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	r.o.deps.Metrics.RecordStage(stage, time.Since(start).Seconds())

	helper := observability.NewSpanHelper(span)
	if err != nil {
		pe := scerrors.ClassifyError(err, stage)
		helper.SetError(err, string(pe.Code), scerrors.IsErrorRetryable(pe))
		return pe
	}
	helper.SetSuccess()
	return nil
}

func (r *run) finish(outcome Outcome, text string) {
	r.result.Outcome = outcome
	r.progress.SetState(StateCompleted)
	r.base.Info("Batch completed",
		logging.F("outcome", string(outcome)),
		logging.F("transcribed", len(r.result.Transcribed)),
		logging.F("skipped", len(r.result.Skipped)))
	r.rep.done(text)
}

func (r *run) fail(pe *scerrors.PipelineError) {
	r.result.Err = pe
	if pe.Code == scerrors.ErrContextCancelled {
		r.result.Outcome = OutcomeAborted
		r.progress.SetState(StateAborted)
		r.base.Warn("Batch aborted", logging.F("file", pe.File))
	} else {
		r.result.Outcome = OutcomeFailed
		r.progress.SetState(StateFailed)
		r.base.Error("Batch failed",
			logging.Err(pe),
			logging.F("code", string(pe.Code)),
			logging.F("stage", pe.Stage))
	}
	r.rep.fail(pe.Report())
}

func (r *run) publishCompleted(ctx context.Context) {
	if r.o.deps.Publisher == nil {
		return
	}
	params := events.CompletedParams{
		RunID:            r.result.RunID,
		InputDir:         r.req.InputDir,
		Outcome:          string(r.result.Outcome),
		TotalFiles:       r.result.Candidates,
		TranscribedCount: len(r.result.Transcribed),
		SkippedCount:     len(r.result.Skipped),
		StartedAt:        r.result.StartedAt,
		CompletedAt:      r.result.CompletedAt,
	}
	if r.result.Err != nil {
		params.ErrorCode = string(r.result.Err.Code)
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.o.deps.Publisher.PublishCompleted(pubCtx, params); err != nil {
		r.logger.Warn("Failed to publish completion event", logging.Err(err))
	}
}

func exportBanner(e export.Exporter, templatePath string) string {
	if e.Name() == export.FormatDocx {
		if templatePath != "" {
			return "  - Saving DOCX file (with template)..."
		}
		return "  - Saving DOCX file (basic)..."
	}
	return fmt.Sprintf("  - Saving %s file...", strings.ToUpper(e.Name()))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

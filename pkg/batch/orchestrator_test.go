package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	"github.com/otherjamesbrown/interview-scribe/pkg/engines"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
	"github.com/otherjamesbrown/interview-scribe/pkg/events"
	"github.com/otherjamesbrown/interview-scribe/pkg/observability"
)

func frag(start, end float64, text string) attribution.Fragment {
	return attribution.Fragment{Interval: attribution.Interval{Start: start, End: end}, Text: text}
}

func turn(start, end float64, speaker string) attribution.Turn {
	return attribution.Turn{Interval: attribution.Interval{Start: start, End: end}, Speaker: speaker}
}

// fakeTranscriber returns the same fragments for every file unless told otherwise.
type fakeTranscriber struct {
	mu        sync.Mutex
	fragments []attribution.Fragment
	readyErr  error
	failOn    map[string]error
	onCall    func(audioPath string)
	calls     []string
	model     string
	languages []string
}

func (f *fakeTranscriber) Ready(ctx context.Context) error { return f.readyErr }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, language string) ([]attribution.Fragment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(audioPath))
	f.languages = append(f.languages, language)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(audioPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.failOn[filepath.Base(audioPath)]; ok {
		return nil, err
	}
	return f.fragments, nil
}

func (f *fakeTranscriber) WithModel(model string) engines.Transcriber {
	f.model = model
	return f
}

func (f *fakeTranscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeDiarizer struct {
	turns    []attribution.Turn
	readyErr error
	err      error
	panicMsg string
}

func (f *fakeDiarizer) Ready(ctx context.Context) error { return f.readyErr }

func (f *fakeDiarizer) Diarize(ctx context.Context, audioPath string) ([]attribution.Turn, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	messages  []events.MessageParams
	completed []events.CompletedParams
	err       error
}

func (p *fakePublisher) PublishMessage(ctx context.Context, params events.MessageParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, params)
	return p.err
}

func (p *fakePublisher) PublishCompleted(ctx context.Context, params events.CompletedParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, params)
	return p.err
}

func interviewEngines() (*fakeTranscriber, *fakeDiarizer) {
	tr := &fakeTranscriber{fragments: []attribution.Fragment{
		frag(0, 2, "hola"),
		frag(2, 5, "soy psicóloga del slim"),
	}}
	di := &fakeDiarizer{turns: []attribution.Turn{
		turn(0, 2, "spkA"),
		turn(2, 5, "spkB"),
	}}
	return tr, di
}

type fixture struct {
	in, out string
	cfg     Config
}

func newFixture(t *testing.T, audio ...string) fixture {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, "audios")
	require.NoError(t, os.Mkdir(in, 0o755))
	touch(t, in, audio...)
	out := filepath.Join(root, "output")
	return fixture{
		in:  in,
		out: out,
		cfg: Config{
			OutputDir: out,
			Language:  "es",
			Formats:   []string{"txt", "docx"},
		},
	}
}

func split(msgs []Message) (logs []string, percents []float64, terminal []Message) {
	for _, m := range msgs {
		switch m.Kind {
		case KindLog:
			logs = append(logs, m.Text)
		case KindProgress:
			percents = append(percents, m.Percent)
		default:
			terminal = append(terminal, m)
		}
	}
	return logs, percents, terminal
}

func TestRun_SingleFile(t *testing.T) {
	fx := newFixture(t, "entrevista.wav")
	tr, di := interviewEngines()
	orch := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di})
	mb := NewMailbox()

	result, err := orch.Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"entrevista.wav"}, result.Transcribed)
	assert.Equal(t, []string{"es"}, tr.languages)

	msgs := mb.Poll()
	logs, percents, terminal := split(msgs)

	require.Len(t, percents, 6)
	for i, want := range []float64{5, 40, 60, 80, 90, 100} {
		assert.InDelta(t, want, percents[i], 1e-9, "checkpoint %d", i)
	}

	require.Len(t, terminal, 1)
	assert.Equal(t, KindDone, terminal[0].Kind)
	assert.Equal(t, "Transcription completed for all files!", terminal[0].Text)

	last := msgs[len(msgs)-1]
	assert.Equal(t, KindLog, last.Kind)
	assert.Equal(t, "Worker finished.", last.Text)
	assert.True(t, msgs[len(msgs)-2].IsTerminal())

	assert.Contains(t, logs, "Scan finished. 1 of 1 audio files will be processed.")
	assert.Contains(t, logs, "Processing entrevista.wav (1/1)...")

	txt, err := os.ReadFile(filepath.Join(fx.out, "entrevista_transcrito.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Víctima: hola\n\nPsicóloga: soy psicóloga del slim\n\n", string(txt))
	assert.FileExists(t, filepath.Join(fx.out, "entrevista_transcrito.docx"))
	assert.Len(t, result.Outputs, 2)

	snap := orch.Progress()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, snap.TotalFiles, snap.CompletedFiles)
}

func TestRun_NoInput(t *testing.T) {
	fx := newFixture(t, "notas.txt")
	tr, di := interviewEngines()
	mb := NewMailbox()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoInput, result.Outcome)

	_, _, terminal := split(mb.Poll())
	require.Len(t, terminal, 1)
	assert.Equal(t, KindDone, terminal[0].Kind)
	assert.Equal(t, "No compatible audio files found in the folder.", terminal[0].Text)
	assert.Empty(t, tr.Calls())
}

func TestRun_AllProcessed(t *testing.T) {
	fx := newFixture(t, "A.wav")
	require.NoError(t, os.MkdirAll(fx.out, 0o755))
	touch(t, fx.out, "a_transcrito.txt")
	tr, di := interviewEngines()
	mb := NewMailbox()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllProcessed, result.Outcome)
	assert.Equal(t, []string{"A.wav"}, result.Skipped)

	_, _, terminal := split(mb.Poll())
	require.Len(t, terminal, 1)
	assert.Equal(t, "All audio files in the folder have already been transcribed!", terminal[0].Text)
	assert.Empty(t, tr.Calls())
}

func TestRun_SkipsTranscribedFiles(t *testing.T) {
	fx := newFixture(t, "F.wav", "G.wav")
	require.NoError(t, os.MkdirAll(fx.out, 0o755))
	touch(t, fx.out, "f_transcrito.docx")
	tr, di := interviewEngines()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, NewMailbox())
	require.NoError(t, err)
	assert.Equal(t, []string{"G.wav"}, tr.Calls())
	assert.Equal(t, []string{"G.wav"}, result.Transcribed)
	assert.Equal(t, []string{"F.wav"}, result.Skipped)
	assert.FileExists(t, filepath.Join(fx.out, "G_transcrito.txt"))
}

func TestRun_AbortsOnFirstError(t *testing.T) {
	fx := newFixture(t, "a.wav", "b.wav")
	tr, di := interviewEngines()
	tr.failOn = map[string]error{"a.wav": errors.New("exit status 1")}
	mb := NewMailbox()
	orch := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di})

	result, err := orch.Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, StateFailed, orch.Progress().State)

	var pe *scerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, scerrors.ErrTranscriptionFailed, pe.Code)
	assert.Equal(t, "a.wav", pe.File)
	assert.NotEmpty(t, pe.Trace)

	assert.Equal(t, []string{"a.wav"}, tr.Calls(), "b.wav must not be attempted")
	assert.Empty(t, result.Transcribed)
	assert.NoFileExists(t, filepath.Join(fx.out, "b_transcrito.txt"))

	msgs := mb.Poll()
	_, _, terminal := split(msgs)
	require.Len(t, terminal, 1)
	assert.Equal(t, KindError, terminal[0].Kind)
	assert.Contains(t, terminal[0].Text, "exit status 1")
	assert.Contains(t, terminal[0].Text, "Details:")
	assert.Equal(t, "Worker finished.", msgs[len(msgs)-1].Text)
}

func TestRun_Cancelled(t *testing.T) {
	fx := newFixture(t, "a.wav", "b.wav")
	tr, di := interviewEngines()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.onCall = func(string) { cancel() }
	mb := NewMailbox()
	orch := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di})

	result, err := orch.Run(ctx, Request{InputDir: fx.in}, mb)
	require.Error(t, err)
	assert.True(t, scerrors.IsCancelled(err))
	assert.Equal(t, OutcomeAborted, result.Outcome)
	assert.Equal(t, StateAborted, orch.Progress().State)
	assert.Equal(t, []string{"a.wav"}, tr.Calls())

	_, _, terminal := split(mb.Poll())
	require.Len(t, terminal, 1)
	assert.Equal(t, KindError, terminal[0].Kind)
	assert.Contains(t, terminal[0].Text, string(scerrors.ErrContextCancelled))
}

func TestRun_InvalidInput(t *testing.T) {
	fx := newFixture(t)
	tr, di := interviewEngines()
	mb := NewMailbox()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: filepath.Join(fx.in, "missing")}, mb)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, scerrors.ErrInvalidInput, result.Err.Code)

	_, percents, terminal := split(mb.Poll())
	assert.Empty(t, percents)
	require.Len(t, terminal, 1)
	assert.Equal(t, KindError, terminal[0].Kind)
}

func TestRun_UnknownFormat(t *testing.T) {
	fx := newFixture(t, "a.wav")
	fx.cfg.Formats = []string{"pdf"}
	tr, di := interviewEngines()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, NewMailbox())
	require.Error(t, err)
	assert.Equal(t, scerrors.ErrInvalidInput, result.Err.Code)
	assert.Empty(t, tr.Calls())
}

func TestRun_EngineUnavailable(t *testing.T) {
	fx := newFixture(t, "a.wav")
	tr, di := interviewEngines()
	di.readyErr = fmt.Errorf("pyannote-rttm: %w", exec.ErrNotFound)

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, NewMailbox())
	require.Error(t, err)
	assert.Equal(t, scerrors.ErrEngineUnavailable, result.Err.Code)
	assert.Empty(t, tr.Calls())
}

func TestRun_RecoversPanics(t *testing.T) {
	fx := newFixture(t, "a.wav")
	tr, di := interviewEngines()
	di.panicMsg = "index out of range"
	mb := NewMailbox()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.Error(t, err)
	assert.Equal(t, scerrors.ErrProcessingError, result.Err.Code)
	assert.Equal(t, "a.wav", result.Err.File)
	assert.Equal(t, scerrors.StageDiarize, result.Err.Stage)
	assert.Contains(t, result.Err.Trace, "goroutine")

	_, _, terminal := split(mb.Poll())
	require.Len(t, terminal, 1)
	assert.Contains(t, terminal[0].Text, "index out of range")
}

func TestRun_FailedExportLeavesNoPartialTranscript(t *testing.T) {
	fx := newFixture(t, "a.wav")
	fx.cfg.Formats = []string{"txt", "docx"}
	tr, di := interviewEngines()

	brokenTemplate := filepath.Join(t.TempDir(), "plantilla.docx")
	require.NoError(t, os.WriteFile(brokenTemplate, []byte("not a zip"), 0o644))

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in, TemplatePath: brokenTemplate}, NewMailbox())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, scerrors.StageExport, result.Err.Stage)
	assert.Empty(t, result.Outputs)
	assert.NoFileExists(t, filepath.Join(fx.out, "a_transcrito.txt"))

	// the file is still pending, so the next run produces both formats
	result, err = NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, NewMailbox())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, []string{"a.wav"}, result.Transcribed)
	assert.FileExists(t, filepath.Join(fx.out, "a_transcrito.txt"))
	assert.FileExists(t, filepath.Join(fx.out, "a_transcrito.docx"))
}

func TestStageOf(t *testing.T) {
	assert.Equal(t, scerrors.StageTranscribe, stageOf(StateTranscribing))
	assert.Equal(t, scerrors.StageDiarize, stageOf(StateDiarizing))
	assert.Equal(t, scerrors.StageAttribute, stageOf(StateAligning))
	assert.Equal(t, scerrors.StageExport, stageOf(StateExporting))
	assert.Equal(t, scerrors.StageDiscover, stageOf(StateDiscovering))
}

func TestRun_EmptyTranscriptWarns(t *testing.T) {
	fx := newFixture(t, "a.wav")
	tr, di := interviewEngines()
	di.turns = []attribution.Turn{turn(100, 200, "spkA")}
	mb := NewMailbox()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)

	logs, _, _ := split(mb.Poll())
	var warned bool
	for _, l := range logs {
		if strings.HasPrefix(l, "WARN: No speech could be attributed in a.wav") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning in %v", logs)

	txt, err := os.ReadFile(filepath.Join(fx.out, "a_transcrito.txt"))
	require.NoError(t, err)
	assert.Empty(t, txt)
}

func TestRun_ModelOverride(t *testing.T) {
	fx := newFixture(t, "a.wav")
	tr, di := interviewEngines()

	_, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in, Model: "medium"}, NewMailbox())
	require.NoError(t, err)
	assert.Equal(t, "medium", tr.model)
}

func TestRun_PublishesEvents(t *testing.T) {
	fx := newFixture(t, "a.wav")
	tr, di := interviewEngines()
	pub := &fakePublisher{}
	mb := NewMailbox()

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di, Publisher: pub}).
		Run(context.Background(), Request{InputDir: fx.in}, mb)
	require.NoError(t, err)

	msgs := mb.Poll()
	require.Len(t, pub.messages, len(msgs))
	for i, m := range msgs {
		assert.Equal(t, string(m.Kind), pub.messages[i].Kind)
		assert.Equal(t, result.RunID, pub.messages[i].RunID)
	}

	require.Len(t, pub.completed, 1)
	completed := pub.completed[0]
	assert.Equal(t, "completed", completed.Outcome)
	assert.Equal(t, 1, completed.TotalFiles)
	assert.Equal(t, 1, completed.TranscribedCount)
	assert.Empty(t, completed.ErrorCode)
}

func TestRun_PublisherFailureIsNotFatal(t *testing.T) {
	fx := newFixture(t, "a.wav")
	tr, di := interviewEngines()
	pub := &fakePublisher{err: errors.New("connection refused")}

	result, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di, Publisher: pub}).
		Run(context.Background(), Request{InputDir: fx.in}, NewMailbox())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
}

func TestRun_RecordsMetrics(t *testing.T) {
	fx := newFixture(t, "a.wav", "b.wav")
	require.NoError(t, os.MkdirAll(fx.out, 0o755))
	touch(t, fx.out, "b_transcrito.txt")
	tr, di := interviewEngines()
	tr.fragments = append(tr.fragments, frag(50, 60, "sin hablante"))
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	_, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di, Metrics: metrics}).
		Run(context.Background(), Request{InputDir: fx.in}, NewMailbox())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilesProcessedTotal.WithLabelValues(observability.StatusTranscribed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FilesProcessedTotal.WithLabelValues(observability.StatusSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FragmentsDroppedTotal.WithLabelValues(observability.DropNoOverlap)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues(string(OutcomeCompleted))))
}

func TestRun_MissingTemplate(t *testing.T) {
	fx := newFixture(t, "a.wav")
	fx.cfg.Formats = []string{"docx"}
	tr, di := interviewEngines()
	mb := NewMailbox()

	_, err := NewOrchestrator(fx.cfg, Dependencies{Transcriber: tr, Diarizer: di}).
		Run(context.Background(), Request{InputDir: fx.in, TemplatePath: filepath.Join(fx.in, "missing.docx")}, mb)
	require.Error(t, err)
	assert.True(t, scerrors.IsNotFound(err))

	_, _, terminal := split(mb.Poll())
	require.Len(t, terminal, 1)
	assert.Equal(t, KindError, terminal[0].Kind)
	assert.Contains(t, terminal[0].Text, string(scerrors.ErrInvalidInput))
}

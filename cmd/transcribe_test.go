package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/interview-scribe/config"
	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	"github.com/otherjamesbrown/interview-scribe/pkg/batch"
	"github.com/otherjamesbrown/interview-scribe/pkg/engines"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
	"github.com/otherjamesbrown/interview-scribe/pkg/events"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

type stubTranscriber struct {
	err   error
	model string
}

func (s *stubTranscriber) Ready(ctx context.Context) error { return nil }

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath, language string) ([]attribution.Fragment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []attribution.Fragment{
		{Interval: attribution.Interval{Start: 0, End: 2}, Text: "hola"},
		{Interval: attribution.Interval{Start: 2, End: 5}, Text: "soy psicóloga del slim"},
	}, nil
}

func (s *stubTranscriber) WithModel(model string) engines.Transcriber {
	s.model = model
	return s
}

type stubDiarizer struct{}

func (stubDiarizer) Ready(ctx context.Context) error { return nil }

func (stubDiarizer) Diarize(ctx context.Context, audioPath string) ([]attribution.Turn, error) {
	return []attribution.Turn{
		{Interval: attribution.Interval{Start: 0, End: 2}, Speaker: "spkA"},
		{Interval: attribution.Interval{Start: 2, End: 5}, Speaker: "spkB"},
	}, nil
}

type transcribeFixture struct {
	in, out     string
	cfg         *config.Config
	transcriber *stubTranscriber
	deps        *TranscribeCommandDeps
	token       string
}

func newTranscribeFixture(t *testing.T, audio ...string) *transcribeFixture {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, "audios")
	require.NoError(t, os.Mkdir(in, 0o755))
	for _, name := range audio {
		require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte("RIFF"), 0o644))
	}

	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(root, "output")
	cfg.Export.Formats = []string{"txt"}

	f := &transcribeFixture{in: in, out: cfg.OutputDir, cfg: cfg, transcriber: &stubTranscriber{}}
	f.deps = &TranscribeCommandDeps{
		Config:    cfg,
		NewLogger: func(*config.Config) logging.Logger { return logging.NewNopLogger() },
		ResolveToken: func() (string, string, error) {
			return "", "", errors.New("no token")
		},
		NewEngines: func(c *config.Config, _ logging.Logger) (engines.Transcriber, engines.Diarizer) {
			f.token = c.HFToken
			return f.transcriber, stubDiarizer{}
		},
		NewPublisher: func(context.Context, events.PublisherConfig, logging.Logger) (Publisher, error) {
			return nil, errors.New("redis unreachable")
		},
		IsTerminal: func() bool { return false },
	}
	return f
}

func (f *transcribeFixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewTranscribeCommand(f.deps)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{f.in}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestTranscribe_WritesTranscripts(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")

	stdout, _, err := f.run(t, "--no-progress")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.out, "a_transcrito.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Víctima: hola\n\nPsicóloga: soy psicóloga del slim\n\n", string(data))

	assert.Contains(t, stdout, "Processing a.wav (1/1)...")
	assert.Contains(t, stdout, "[100%]")
	assert.Contains(t, stdout, "Transcription completed for all files!")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "Worker finished."))
}

func TestTranscribe_FlagsOverrideConfig(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")
	other := filepath.Join(t.TempDir(), "elsewhere")

	_, _, err := f.run(t, "--output", other, "--formats", "txt,md", "--model", "medium")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(other, "a_transcrito.txt"))
	assert.FileExists(t, filepath.Join(other, "a_transcrito.md"))
	assert.Equal(t, "medium", f.transcriber.model)
}

func TestTranscribe_JSONSummary(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav", "b.mp3")
	f.cfg.OutputFormat = config.OutputFormatJSON

	stdout, stderr, err := f.run(t)
	require.NoError(t, err)

	var summary RunSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary), stdout)
	assert.Equal(t, string(batch.OutcomeCompleted), summary.Outcome)
	assert.Equal(t, 2, summary.Candidates)
	assert.Equal(t, []string{"a.wav", "b.mp3"}, summary.Transcribed)
	assert.NotEmpty(t, summary.RunID)
	assert.Contains(t, stderr, "Transcription completed for all files!")
}

func TestTranscribe_NothingToDo(t *testing.T) {
	f := newTranscribeFixture(t)

	stdout, _, err := f.run(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No compatible audio files found in the folder.")
}

func TestTranscribe_FailureReturnsError(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")
	f.transcriber.err = errors.New("whisper crashed")

	_, stderr, err := f.run(t)
	require.Error(t, err)

	var pe *scerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, scerrors.ErrTranscriptionFailed, pe.Code)
	assert.Contains(t, stderr, "Error: ")
	assert.Contains(t, stderr, "whisper crashed")
}

func TestTranscribe_BusyOutputFolder(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")
	require.NoError(t, os.MkdirAll(f.out, 0o755))
	lock := flock.New(filepath.Join(f.out, batch.LockFileName))
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer lock.Unlock()

	_, stderr, err := f.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, scerrors.ErrBusy)
	assert.Contains(t, stderr, BusyNotice)
	assert.NoFileExists(t, filepath.Join(f.out, "a_transcrito.txt"))
}

func TestTranscribe_PublisherFailureIsNotFatal(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")
	f.cfg.Events.RedisAddr = "localhost:1"

	_, _, err := f.run(t)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.out, "a_transcrito.txt"))
}

func TestTranscribe_ResolvesToken(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")
	f.deps.ResolveToken = func() (string, string, error) {
		return "hf_fromkeyring", "System Keyring (Secret Service)", nil
	}

	_, _, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, "hf_fromkeyring", f.token)
}

func TestTranscribe_EnvTokenWins(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")
	f.cfg.HFToken = "hf_fromenv"
	f.deps.ResolveToken = func() (string, string, error) {
		t.Fatal("token should not be resolved when already configured")
		return "", "", nil
	}

	_, _, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, "hf_fromenv", f.token)
}

func TestTranscribe_InvalidFormatFlag(t *testing.T) {
	f := newTranscribeFixture(t, "a.wav")

	_, _, err := f.run(t, "--formats", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid options")
}

func TestTranscribe_RequiresFolder(t *testing.T) {
	cmd := NewTranscribeCommand(newTranscribeFixture(t).deps)
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestServeMetrics(t *testing.T) {
	stop, err := serveMetrics("127.0.0.1:0", prometheus.NewRegistry(), logging.NewNopLogger())
	require.NoError(t, err)
	stop()

	_, err = serveMetrics("not-an-address", prometheus.NewRegistry(), logging.NewNopLogger())
	assert.Error(t, err)
}

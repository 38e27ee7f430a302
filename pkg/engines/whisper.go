package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// Default recognizer settings. Voice activity filtering stays off so that
// hesitations and short answers are not cut from the transcript.
const (
	DefaultWhisperCommand = "whisper-ctranslate2"
	DefaultWhisperModel   = "large-v3"
	DefaultBeamSize       = 5
)

// WhisperConfig configures the faster-whisper command line recognizer.
type WhisperConfig struct {
	// Command is the argv prefix; the recognizer arguments are appended.
	Command []string
	Model   string
	Device  string
	Timeout time.Duration
}

// WhisperCLI transcribes audio by running a faster-whisper CLI that writes a
// JSON result ({"segments":[{"start","end","text"}]}) into an output directory.
type WhisperCLI struct {
	cfg WhisperConfig
	run CommandRunner
	log logging.Logger
}

var (
	_ Transcriber   = (*WhisperCLI)(nil)
	_ ModelSelector = (*WhisperCLI)(nil)
)

// NewWhisperCLI creates a recognizer adapter.
func NewWhisperCLI(cfg WhisperConfig, log logging.Logger) *WhisperCLI {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{DefaultWhisperCommand}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &WhisperCLI{cfg: cfg, run: ExecRunner(log), log: log}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperCLI) WithCommandRunner(runner CommandRunner) {
	w.run = runner
}

// WithModel returns a copy using a different model.
func (w *WhisperCLI) WithModel(model string) Transcriber {
	if model == "" {
		return w
	}
	cp := *w
	cp.cfg.Model = model
	return &cp
}

// Model returns the configured model name for logging.
func (w *WhisperCLI) Model() string {
	return w.cfg.Model
}

// Ready checks that the recognizer executable is installed.
func (w *WhisperCLI) Ready(ctx context.Context) error {
	return checkExecutable(w.cfg.Command)
}

// Transcribe runs the recognizer on audioPath and decodes its segments.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath, language string) ([]attribution.Fragment, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("transcribe: audio path required")
	}

	outDir, err := os.MkdirTemp("", "scribe-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("transcribe: create work dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	ctx, cancel := withTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	cmd := Command{Name: w.cfg.Command[0], Args: w.buildArgs(audioPath, outDir, language)}
	w.log.Debug("Running recognizer", logging.F("command", cmd.String()))

	stdout, err := w.run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	resultPath := filepath.Join(outDir, base+".json")
	data, err := os.ReadFile(resultPath)
	if errors.Is(err, fs.ErrNotExist) && len(bytes.TrimSpace(stdout)) > 0 {
		// Wrapper scripts may print the result instead of writing it.
		data, err = stdout, nil
	}
	if err != nil {
		return nil, fmt.Errorf("whisper: reading result: %w", err)
	}

	fragments, err := DecodeWhisperJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return fragments, nil
}

func (w *WhisperCLI) buildArgs(audioPath, outDir, language string) []string {
	args := append([]string{}, w.cfg.Command[1:]...)
	args = append(args,
		audioPath,
		"--model", w.cfg.Model,
		"--vad_filter", "False",
		"--beam_size", fmt.Sprint(DefaultBeamSize),
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", outDir,
	)
	if language != "" {
		args = append(args, "--language", language)
	}
	if w.cfg.Device != "" {
		args = append(args, "--device", w.cfg.Device)
	}
	return args
}

type whisperResult struct {
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start decimal.Decimal `json:"start"`
	End   decimal.Decimal `json:"end"`
	Text  string          `json:"text"`
}

// DecodeWhisperJSON parses a recognizer result into fragments, in the order given.
// A segment whose end precedes its start is collapsed to a zero-length interval.
func DecodeWhisperJSON(r io.Reader) ([]attribution.Fragment, error) {
	var res whisperResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding recognizer json: %w", err)
	}

	fragments := make([]attribution.Fragment, 0, len(res.Segments))
	for _, seg := range res.Segments {
		start := seg.Start.InexactFloat64()
		end := seg.End.InexactFloat64()
		if end < start {
			end = start
		}
		fragments = append(fragments, attribution.Fragment{
			Interval: attribution.Interval{Start: start, End: end},
			Text:     seg.Text,
		})
	}
	return fragments, nil
}

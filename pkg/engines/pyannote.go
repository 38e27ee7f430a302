package engines

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// Default diarization settings.
const (
	DefaultPyannoteCommand  = "pyannote-rttm"
	DefaultPyannotePipeline = "pyannote/speaker-diarization-3.1"
)

// PyannoteConfig configures the diarization command.
type PyannoteConfig struct {
	// Command is the argv prefix; "--pipeline <name> <audio>" is appended.
	// The command must print RTTM to stdout.
	Command []string

	Pipeline string
	Timeout  time.Duration

	// HFToken is passed to the command as HF_TOKEN.
	HFToken string
}

// PyannoteCLI diarizes audio with a pyannote pipeline behind a command line helper.
type PyannoteCLI struct {
	cfg PyannoteConfig
	run CommandRunner
	log logging.Logger
}

var _ Diarizer = (*PyannoteCLI)(nil)

// NewPyannoteCLI creates a diarization adapter.
func NewPyannoteCLI(cfg PyannoteConfig, log logging.Logger) *PyannoteCLI {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{DefaultPyannoteCommand}
	}
	if cfg.Pipeline == "" {
		cfg.Pipeline = DefaultPyannotePipeline
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &PyannoteCLI{cfg: cfg, run: ExecRunner(log), log: log}
}

// WithCommandRunner sets a custom command runner (for testing).
func (p *PyannoteCLI) WithCommandRunner(runner CommandRunner) {
	p.run = runner
}

// Ready checks the executable and that a Hugging Face token is available.
func (p *PyannoteCLI) Ready(ctx context.Context) error {
	if strings.TrimSpace(p.cfg.HFToken) == "" {
		return fmt.Errorf("hugging face token not configured (run 'scribe auth hf-token set' or set HF_TOKEN): %w", scerrors.ErrValidation)
	}
	return checkExecutable(p.cfg.Command)
}

// Diarize runs the diarization pipeline on audioPath.
func (p *PyannoteCLI) Diarize(ctx context.Context, audioPath string) ([]attribution.Turn, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("diarize: audio path required")
	}

	ctx, cancel := withTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	args := append([]string{}, p.cfg.Command[1:]...)
	args = append(args, "--pipeline", p.cfg.Pipeline, audioPath)
	cmd := Command{
		Name: p.cfg.Command[0],
		Args: args,
		Env:  []string{"HF_TOKEN=" + p.cfg.HFToken, "PYANNOTE_AUDIO_PROGRESSBAR=false"},
	}
	p.log.Debug("Running diarization", logging.F("command", cmd.String()))

	stdout, err := p.run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("pyannote: %w", err)
	}

	turns, err := ParseRTTM(bytes.NewReader(stdout))
	if err != nil {
		return nil, fmt.Errorf("pyannote: %w", err)
	}
	return turns, nil
}

// ParseRTTM reads SPEAKER lines from an RTTM document:
//
//	SPEAKER <file> <chan> <onset> <duration> <NA> <NA> <speaker> <NA> <NA>
//
// Other record types, blank lines and ';' comments are skipped.
func ParseRTTM(r io.Reader) ([]attribution.Turn, error) {
	var turns []attribution.Turn

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] != "SPEAKER" {
			continue
		}
		if len(fields) < 8 {
			return nil, fmt.Errorf("rttm line %d: expected at least 8 fields, got %d", lineNo, len(fields))
		}

		onset, err := decimal.NewFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("rttm line %d: onset %q: %w", lineNo, fields[3], err)
		}
		dur, err := decimal.NewFromString(fields[4])
		if err != nil {
			return nil, fmt.Errorf("rttm line %d: duration %q: %w", lineNo, fields[4], err)
		}
		if dur.IsNegative() {
			return nil, fmt.Errorf("rttm line %d: negative duration %s", lineNo, dur)
		}

		turns = append(turns, attribution.Turn{
			Interval: attribution.Interval{
				Start: onset.InexactFloat64(),
				End:   onset.Add(dur).InexactFloat64(),
			},
			Speaker: fields[7],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rttm: %w", err)
	}
	return turns, nil
}

// Package engines adapts the external speech recognition and diarization tools
// to the attribution pipeline. Each engine shells out to a configurable command
// and decodes its output into fragments or turns.
package engines

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	"github.com/otherjamesbrown/interview-scribe/pkg/logging"
)

// Transcriber produces timed text fragments for an audio file.
type Transcriber interface {
	// Ready reports whether the engine can run, e.g. its executable is installed.
	Ready(ctx context.Context) error
	Transcribe(ctx context.Context, audioPath, language string) ([]attribution.Fragment, error)
}

// ModelSelector is implemented by transcribers that can switch models per run.
type ModelSelector interface {
	WithModel(model string) Transcriber
}

// Diarizer produces speaker turns for an audio file.
type Diarizer interface {
	Ready(ctx context.Context) error
	Diarize(ctx context.Context, audioPath string) ([]attribution.Turn, error)
}

// Command is one external process invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the current environment.
	Env []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandRunner runs a command and returns its stdout.
type CommandRunner func(ctx context.Context, cmd Command) ([]byte, error)

// stderrTailLines is how much stderr is kept for error messages.
const stderrTailLines = 8

// ExecRunner returns a CommandRunner backed by os/exec. Stderr lines are
// forwarded to log at debug level; the last few are attached to failures.
func ExecRunner(log logging.Logger) CommandRunner {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return func(ctx context.Context, c Command) ([]byte, error) {
		cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec
		if len(c.Env) > 0 {
			cmd.Env = append(os.Environ(), c.Env...)
		}

		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("%s: stderr pipe: %w", c.Name, err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}

		var tail []string
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(scanOutputLines)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			log.Debug(line, logging.F("engine", c.Name))
			tail = append(tail, line)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
		}
		// Wait must not run while the pipe still has writers blocked on it.
		if err := scanner.Err(); err != nil {
			log.Debug("stderr not forwarded", logging.F("engine", c.Name), logging.Err(err))
			_, _ = io.Copy(io.Discard, stderr)
		}

		if err := cmd.Wait(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%s: %w", c.Name, ctxErr)
			}
			if len(tail) > 0 {
				return nil, fmt.Errorf("%s: %w: %s", c.Name, err, strings.Join(tail, "; "))
			}
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		return stdout.Bytes(), nil
	}
}

// scanOutputLines is bufio.ScanLines that also breaks on a bare '\r', so
// progress bars redrawn in place arrive as separate lines.
func scanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

func checkExecutable(argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return fmt.Errorf("no command configured: %w", exec.ErrNotFound)
	}
	if _, err := lookPath(argv[0]); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
)

// LockFileName is created in the output folder while a batch runs.
const LockFileName = ".scribe.lock"

// Worker runs at most one batch at a time in the background. Across
// processes, a file lock in the output folder keeps two runs from writing
// the same transcripts.
type Worker struct {
	orch *Orchestrator

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	result *Result
	err    error
}

// NewWorker creates a worker for orch.
func NewWorker(orch *Orchestrator) *Worker {
	return &Worker{orch: orch}
}

// Start launches a batch and returns immediately. Messages are sent to mb,
// which is closed when the run ends. Start fails with ErrBusy while another
// run is active here or in another process.
func (w *Worker) Start(ctx context.Context, req Request, mb *Mailbox) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running() {
		return fmt.Errorf("worker: %w", scerrors.ErrBusy)
	}

	outputDir := w.orch.OutputDir()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output folder: %w", err)
	}
	lock := flock.New(filepath.Join(outputDir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("output folder %s is locked by another process: %w", outputDir, scerrors.ErrBusy)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.result = nil
	w.err = nil

	go func() {
		defer close(done)
		defer mb.Close()
		defer cancel()
		defer func() { _ = lock.Unlock() }()

		result, err := w.orch.Run(runCtx, req, mb)

		w.mu.Lock()
		w.result = result
		w.err = err
		w.mu.Unlock()
	}()
	return nil
}

// Cancel requests the active run to stop. The run finishes its current
// external call, then reports an aborted outcome.
func (w *Worker) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Wait blocks until the active run finishes or ctx is done, and returns
// the run's result.
func (w *Worker) Wait(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil, fmt.Errorf("no batch started: %w", scerrors.ErrInvalidState)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.err
}

// Running reports whether a batch is in progress.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running()
}

// Must be called with lock held.
func (w *Worker) running() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Progress returns a snapshot of the current or last run.
func (w *Worker) Progress() ProgressSnapshot {
	return w.orch.Progress()
}

// Package batch runs transcription batches: it discovers pending audio files,
// drives each one through recognition, diarization, attribution and export,
// and reports to an observer through a Mailbox.
package batch

import (
	"sync"
	"time"
)

// State is the lifecycle state of a batch run.
type State string

const (
	StateIdle         State = "idle"
	StateDiscovering  State = "discovering"
	StateTranscribing State = "transcribing"
	StateDiarizing    State = "diarizing"
	StateAligning     State = "aligning"
	StateExporting    State = "exporting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateAborted      State = "aborted"
)

// IsTerminal reports whether no further transitions happen from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// Progress tracks the progress of a batch run.
type Progress struct {
	mu sync.RWMutex

	// Counts
	TotalFiles     int
	CompletedFiles int
	SkippedCount   int

	// Current state
	State       State
	CurrentFile string
	fraction    float64
	percent     float64

	// Timing
	StartedAt time.Time
	UpdatedAt time.Time
}

// NewProgress creates a new progress tracker in the idle state.
func NewProgress() *Progress {
	now := time.Now()
	return &Progress{
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// SetState records a state transition.
func (p *Progress) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = s
	p.UpdatedAt = time.Now()
}

// Plan records how many files will be processed and how many were skipped.
func (p *Progress) Plan(total, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TotalFiles = total
	p.SkippedCount = skipped
	p.UpdatedAt = time.Now()
}

// SetPercent records an absolute percentage, e.g. before files are known.
func (p *Progress) SetPercent(percent float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(percent)
	return p.percent
}

// StartFile marks file as the one being processed.
func (p *Progress) StartFile(file string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentFile = file
	p.fraction = 0
	p.UpdatedAt = time.Now()
}

// Checkpoint records that fraction (0..1) of the current file is done and
// returns the overall percentage: ((completed + fraction) / total) * 100.
// The reported percentage never decreases within a run.
func (p *Progress) Checkpoint(fraction float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fraction > 1 {
		fraction = 1
	}
	p.fraction = fraction
	p.advance(p.overall())
	return p.percent
}

// CompleteFile marks the current file as finished.
func (p *Progress) CompleteFile() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompletedFiles++
	p.CurrentFile = ""
	p.fraction = 0
	p.advance(p.overall())
}

// Must be called with lock held.
func (p *Progress) advance(percent float64) {
	if percent > p.percent {
		p.percent = percent
	}
	p.UpdatedAt = time.Now()
}

// Must be called with lock held.
func (p *Progress) overall() float64 {
	if p.TotalFiles == 0 {
		return p.percent
	}
	return (float64(p.CompletedFiles) + p.fraction) / float64(p.TotalFiles) * 100
}

// Snapshot returns a read-only copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.StartedAt).Seconds()
	var estimatedRemaining *float64
	if p.percent > 0 && p.percent < 100 {
		est := elapsed / p.percent * (100 - p.percent)
		estimatedRemaining = &est
	}

	return ProgressSnapshot{
		TotalFiles:                p.TotalFiles,
		CompletedFiles:            p.CompletedFiles,
		SkippedCount:              p.SkippedCount,
		State:                     p.State,
		CurrentFile:               p.CurrentFile,
		Percent:                   p.percent,
		StartedAt:                 p.StartedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: estimatedRemaining,
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalFiles                int
	CompletedFiles            int
	SkippedCount              int
	State                     State
	CurrentFile               string
	Percent                   float64
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

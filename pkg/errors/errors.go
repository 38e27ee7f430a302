// Package errors provides common domain error types for interview-scribe.
//
// This package defines sentinel errors for conditions that the batch pipeline and
// the CLI need to tell apart with errors.Is(), plus a coded PipelineError that
// carries the failing stage, file and a diagnostic trace.
//
// Usage:
//
//	import scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
//
//	// Return a domain error
//	return fmt.Errorf("template %s: %w", path, scerrors.ErrValidation)
//
//	// Check for domain errors
//	if scerrors.IsBusy(err) {
//	    // tell the user a batch is already running
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested file or folder was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrBusy indicates a batch run is already active for this worker or output folder.
	ErrBusy = errors.New("a transcription is already running")

	// ErrEmptyInput indicates a pipeline stage received no records where at least one is required.
	ErrEmptyInput = errors.New("empty input")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsBusy reports whether any error in err's chain is ErrBusy.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsEmptyInput reports whether any error in err's chain is ErrEmptyInput.
func IsEmptyInput(err error) bool {
	return errors.Is(err, ErrEmptyInput)
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrInvalidInput        ErrorCode = "invalid_input"
	ErrNoInput             ErrorCode = "no_input"
	ErrTimeout             ErrorCode = "timeout"
	ErrContextCancelled    ErrorCode = "context_cancelled"
	ErrEngineUnavailable   ErrorCode = "engine_unavailable"
	ErrTranscriptionFailed ErrorCode = "transcription_failed"
	ErrDiarizationFailed   ErrorCode = "diarization_failed"
	ErrAttributionFailed   ErrorCode = "attribution_failed"
	ErrExportFailed        ErrorCode = "export_failed"
	ErrProcessingError     ErrorCode = "processing_error"
)

// Pipeline stage names used in PipelineError.Stage.
const (
	StageDiscover   = "discover"
	StageTranscribe = "transcribe"
	StageDiarize    = "diarize"
	StageAttribute  = "attribute"
	StageExport     = "export"
)

var stageCodes = map[string]ErrorCode{
	StageDiscover:   ErrInvalidInput,
	StageTranscribe: ErrTranscriptionFailed,
	StageDiarize:    ErrDiarizationFailed,
	StageAttribute:  ErrAttributionFailed,
	StageExport:     ErrExportFailed,
}

// PipelineError is a structured error for a failed batch.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	File    string
	Message string
	Cause   error

	// Trace is a diagnostic stack captured where the failure was caught.
	Trace string
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Stage != "" {
		b.WriteString(": ")
		b.WriteString(e.Stage)
	}
	if e.File != "" {
		b.WriteString(": ")
		b.WriteString(e.File)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Report renders the error the way the observer shows it: message, then the trace.
func (e *PipelineError) Report() string {
	if e.Trace == "" {
		return e.Error()
	}
	return fmt.Sprintf("%s\n\nDetails:\n%s", e.Error(), e.Trace)
}

// WithFile returns e with the file set, for chaining at the per-file boundary.
func (e *PipelineError) WithFile(file string) *PipelineError {
	e.File = file
	return e
}

// WithTrace returns e with the diagnostic trace set.
func (e *PipelineError) WithTrace(trace string) *PipelineError {
	e.Trace = trace
	return e
}

// ClassifyError inspects an error and returns a *PipelineError with the appropriate code.
// Errors that are already a *PipelineError are returned as is.
// Unknown errors get the code for their stage, or ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &PipelineError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	}

	if errors.Is(err, context.Canceled) {
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	}

	msg := err.Error()
	pe.Message = msg

	if errors.Is(err, exec.ErrNotFound) || strings.Contains(strings.ToLower(msg), "executable file not found") {
		pe.Code = ErrEngineUnavailable
		return pe
	}

	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		pe.Code = ErrInvalidInput
		return pe
	}

	if code, ok := stageCodes[stage]; ok {
		pe.Code = code
		return pe
	}

	pe.Code = ErrProcessingError
	return pe
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrTimeout
	}
	return false
}

// IsCancelled returns true if the error is a user or system abort.
func IsCancelled(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrContextCancelled
	}
	return errors.Is(err, context.Canceled)
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := ErrorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}

package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrInvalidInput: {
		Code:            ErrInvalidInput,
		Retryable:       false,
		Description:     "Selected folder or template is not usable",
		SuggestedAction: "Check the audio folder and template paths: scribe status <folder>",
	},
	ErrNoInput: {
		Code:            ErrNoInput,
		Retryable:       false,
		Description:     "No compatible audio files were found",
		SuggestedAction: "Check audio_extensions in ~/.scribe/config.yaml",
	},
	ErrTimeout: {
		Code:            ErrTimeout,
		Retryable:       true,
		Description:     "Operation exceeded time limit",
		SuggestedAction: "Raise engines.timeout in ~/.scribe/config.yaml",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Retryable:       true,
		Description:     "Batch aborted by user or system",
		SuggestedAction: "Run the same command again; finished files are skipped",
	},
	ErrEngineUnavailable: {
		Code:            ErrEngineUnavailable,
		Retryable:       false,
		Description:     "Recognition or diarization engine could not be started",
		SuggestedAction: "Check engines.*.command in ~/.scribe/config.yaml and that the engine is installed",
	},
	ErrTranscriptionFailed: {
		Code:            ErrTranscriptionFailed,
		Retryable:       true,
		Description:     "Speech recognition engine failed",
		SuggestedAction: "Inspect engine output with --debug and retry",
	},
	ErrDiarizationFailed: {
		Code:            ErrDiarizationFailed,
		Retryable:       true,
		Description:     "Speaker diarization engine failed",
		SuggestedAction: "Verify the Hugging Face token: scribe auth hf-token show",
	},
	ErrAttributionFailed: {
		Code:            ErrAttributionFailed,
		Retryable:       false,
		Description:     "Speaker attribution failed",
		SuggestedAction: "Check logs with --debug",
	},
	ErrExportFailed: {
		Code:            ErrExportFailed,
		Retryable:       true,
		Description:     "Writing the transcript failed",
		SuggestedAction: "Check that the output folder is writable and the template is a valid .docx",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Check logs with --debug",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check logs with --debug"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}

package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
)

// Defaults for discovery.
var (
	DefaultAudioExtensions = []string{".wav", ".mp3", ".flac", ".m4a"}
)

// DefaultMarker is appended to an audio base name to name its transcripts.
const DefaultMarker = "_transcrito"

// Plan is the outcome of discovery for one run.
type Plan struct {
	// Candidates are all audio files in the input folder, sorted.
	Candidates []string
	// Pending are the candidates without a transcript, in the same order.
	Pending []string
	// Skipped are the candidates that already have a transcript.
	Skipped []string
}

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	AudioExtensions []string
	Marker          string
	// OutputExtensions are the transcript extensions that count as done.
	OutputExtensions []string
}

// Discover lists audio files in inputDir and splits them into pending and
// already transcribed, using the transcripts in outputDir as the ledger.
func Discover(inputDir, outputDir string, opts DiscoverOptions) (*Plan, error) {
	candidates, err := ListAudio(inputDir, opts.AudioExtensions)
	if err != nil {
		return nil, err
	}
	processed, err := ScanProcessed(outputDir, opts.Marker, opts.OutputExtensions)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Candidates: candidates}
	for _, name := range candidates {
		if processed[normalizeBase(BaseName(name))] {
			plan.Skipped = append(plan.Skipped, name)
		} else {
			plan.Pending = append(plan.Pending, name)
		}
	}
	return plan, nil
}

// ListAudio returns the names of files in dir (non-recursive) whose extension
// is in extensions, compared case-insensitively, sorted by name.
func ListAudio(dir string, extensions []string) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultAudioExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[normalizeExt(ext)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("audio folder %s: %w", dir, scerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading audio folder %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ScanProcessed returns the lower-cased, trimmed base names that already have a
// transcript in outputDir: files named <base><marker><ext> for any of exts,
// matched case-insensitively. A missing outputDir means nothing is processed.
func ScanProcessed(outputDir, marker string, exts []string) (map[string]bool, error) {
	if marker == "" {
		marker = DefaultMarker
	}
	processed := make(map[string]bool)

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return processed, nil
		}
		return nil, fmt.Errorf("reading output folder %s: %w", outputDir, err)
	}

	suffixes := make([]string, 0, len(exts))
	for _, ext := range exts {
		suffixes = append(suffixes, strings.ToLower(marker+normalizeExt(ext)))
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		for _, suffix := range suffixes {
			if strings.HasSuffix(lower, suffix) {
				processed[normalizeBase(lower[:len(lower)-len(suffix)])] = true
				break
			}
		}
	}
	return processed, nil
}

// BaseName returns name without its extension.
func BaseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// OutputName returns the transcript file name for an audio file.
func OutputName(audioName, marker, ext string) string {
	if marker == "" {
		marker = DefaultMarker
	}
	return BaseName(audioName) + marker + normalizeExt(ext)
}

// ValidateRequest checks the input folder and optional template.
func ValidateRequest(req Request) error {
	info, err := os.Stat(req.InputDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("audio folder %q does not exist: %w", req.InputDir, scerrors.ErrNotFound)
	case err != nil:
		return fmt.Errorf("audio folder %q: %w", req.InputDir, err)
	case !info.IsDir():
		return fmt.Errorf("%q is not a folder: %w", req.InputDir, scerrors.ErrValidation)
	}

	if req.TemplatePath == "" {
		return nil
	}
	info, err = os.Stat(req.TemplatePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("template %q does not exist: %w", req.TemplatePath, scerrors.ErrNotFound)
	case err != nil:
		return fmt.Errorf("template %q: %w", req.TemplatePath, err)
	case !info.Mode().IsRegular():
		return fmt.Errorf("template %q is not a regular file: %w", req.TemplatePath, scerrors.ErrValidation)
	case !strings.EqualFold(filepath.Ext(req.TemplatePath), ".docx"):
		return fmt.Errorf("template %q must be a .docx file: %w", req.TemplatePath, scerrors.ErrValidation)
	}
	return nil
}

func normalizeBase(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

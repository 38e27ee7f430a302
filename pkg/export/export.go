// Package export renders final transcripts to documents.
//
// Every exporter overwrites its destination atomically: content is written to a
// hidden temp file in the destination directory and renamed into place, so an
// interrupted run never leaves a partial file that looks like a finished one.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
)

// Exporter writes a transcript to a file.
type Exporter interface {
	// Name is the format key used in configuration ("txt", "docx", "md").
	Name() string
	// Extension is the file extension including the dot.
	Extension() string
	Export(ctx context.Context, records []attribution.FinalRecord, destPath string) error
}

// Labels are the display names of the two roles.
type Labels struct {
	Distinguished string `yaml:"distinguished_label"`
	Other         string `yaml:"other_label"`
}

// DefaultLabels returns the labels used for psychologist interviews.
func DefaultLabels() Labels {
	return Labels{Distinguished: "Psicóloga", Other: "Víctima"}
}

// For returns the label for role.
func (l Labels) For(role attribution.Role) string {
	if role == attribution.RoleDistinguished {
		return l.Distinguished
	}
	return l.Other
}

// Line renders a record as "<label>: <text>".
func (l Labels) Line(r attribution.FinalRecord) string {
	return l.For(r.Role) + ": " + r.Text
}

// Heading is the title written by the document exporters.
const Heading = "Transcripción"

// Supported format keys.
const (
	FormatText     = "txt"
	FormatDocx     = "docx"
	FormatMarkdown = "md"
)

// DefaultFormats are the formats produced when none are configured.
var DefaultFormats = []string{FormatText, FormatDocx}

// KnownExtensions lists the file extension of every supported format.
func KnownExtensions() []string {
	return []string{".txt", ".docx", ".md"}
}

// New builds exporters for formats in the given order. Duplicates are ignored.
func New(formats []string, labels Labels, templatePath string) ([]Exporter, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	seen := make(map[string]bool, len(formats))
	var out []Exporter
	for _, f := range formats {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if seen[f] {
			continue
		}
		seen[f] = true
		switch f {
		case FormatText:
			out = append(out, &TextExporter{Labels: labels})
		case FormatDocx:
			out = append(out, &DocxExporter{Labels: labels, TemplatePath: templatePath})
		case FormatMarkdown:
			out = append(out, &MarkdownExporter{Labels: labels})
		default:
			return nil, fmt.Errorf("unknown export format %q: %w", f, scerrors.ErrValidation)
		}
	}
	return out, nil
}

// writeAtomic writes dest via a temp file in the same directory and renames it into place.
func writeAtomic(dest string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("renaming into %s: %w", dest, err)
	}
	return nil
}

// saveAtomic is writeAtomic for writers that can only save to a path. The temp
// name keeps dest's extension.
func saveAtomic(dest string, save func(path string) error) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*"+filepath.Ext(dest))
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if err = save(tmpName); err != nil {
		return fmt.Errorf("saving %s: %w", dest, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("renaming into %s: %w", dest, err)
	}
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/interview-scribe/config"
	"github.com/otherjamesbrown/interview-scribe/pkg/batch"
	"github.com/otherjamesbrown/interview-scribe/pkg/export"
)

// StatusCommandDeps holds the dependencies for the status command.
type StatusCommandDeps struct {
	Config     *config.Config
	LoadConfig func() (*config.Config, error)
}

// DefaultStatusDeps returns the default dependencies for production use.
func DefaultStatusDeps() *StatusCommandDeps {
	return &StatusCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

func (d *StatusCommandDeps) config() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// FileStatus is one audio file in a status report.
type FileStatus struct {
	Name        string `json:"name" yaml:"name"`
	Transcribed bool   `json:"transcribed" yaml:"transcribed"`
}

// StatusReport summarizes which audio files in a folder still need a transcript.
type StatusReport struct {
	InputDir    string       `json:"input_dir" yaml:"input_dir"`
	OutputDir   string       `json:"output_dir" yaml:"output_dir"`
	Files       []FileStatus `json:"files" yaml:"files"`
	Pending     int          `json:"pending" yaml:"pending"`
	Transcribed int          `json:"transcribed" yaml:"transcribed"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(deps *StatusCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultStatusDeps()
	}

	var outputDir string

	cmd := &cobra.Command{
		Use:   "status <audio-folder>",
		Short: "Show which audio files are already transcribed",
		Long: `List the audio files in a folder and whether a transcript already exists.

A file counts as transcribed when the output folder holds a file named
<audio name><marker>.<ext> for any known transcript extension (.txt, .docx, .md).
These are the files 'scribe transcribe' skips.

Examples:
  scribe status ./entrevistas
  scribe status ./entrevistas --output ./transcripciones
  scribe status ./entrevistas --output-format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			dir := outputDir
			if dir == "" {
				dir = cfg.OutputDir
			}
			report, err := buildStatusReport(cfg, args[0], dir)
			if err != nil {
				return err
			}
			return printStatusReport(cmd.OutOrStdout(), cfg.OutputFormat, report)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output", "", "folder holding the transcripts (default from config)")

	return cmd
}

func buildStatusReport(cfg *config.Config, inputDir, outputDir string) (*StatusReport, error) {
	plan, err := batch.Discover(inputDir, outputDir, batch.DiscoverOptions{
		AudioExtensions:  cfg.AudioExtensions,
		Marker:           cfg.Marker,
		OutputExtensions: export.KnownExtensions(),
	})
	if err != nil {
		return nil, err
	}

	skipped := make(map[string]bool, len(plan.Skipped))
	for _, name := range plan.Skipped {
		skipped[name] = true
	}

	report := &StatusReport{
		InputDir:    absOrSelf(inputDir),
		OutputDir:   absOrSelf(outputDir),
		Files:       make([]FileStatus, 0, len(plan.Candidates)),
		Pending:     len(plan.Pending),
		Transcribed: len(plan.Skipped),
	}
	for _, name := range plan.Candidates {
		report.Files = append(report.Files, FileStatus{Name: name, Transcribed: skipped[name]})
	}
	return report, nil
}

func printStatusReport(w io.Writer, format config.OutputFormat, report *StatusReport) error {
	if handled, err := writeStructured(w, format, report); handled || err != nil {
		return err
	}

	if len(report.Files) == 0 {
		fmt.Fprintf(w, "No compatible audio files found in %s\n", report.InputDir)
		return nil
	}

	rows := make([][]string, 0, len(report.Files))
	for i, f := range report.Files {
		status := "pending"
		if f.Transcribed {
			status = "transcribed"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), f.Name, status})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "File", "Status"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
	fmt.Fprintf(w, "%d of %d audio files pending (transcripts in %s)\n",
		report.Pending, len(report.Files), report.OutputDir)
	return nil
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

package export

import (
	"bufio"
	"context"
	"io"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
)

// TextExporter writes "<label>: <text>" records separated by blank lines, UTF-8.
type TextExporter struct {
	Labels Labels
}

func (e *TextExporter) Name() string      { return FormatText }
func (e *TextExporter) Extension() string { return ".txt" }

// Export implements Exporter.
func (e *TextExporter) Export(ctx context.Context, records []attribution.FinalRecord, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(destPath, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, r := range records {
			bw.WriteString(e.Labels.Line(r))
			bw.WriteString("\n\n")
		}
		return bw.Flush()
	})
}

package export

import (
	"bufio"
	"context"
	"io"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
)

// MarkdownExporter writes a heading followed by one paragraph per record with a bold label.
type MarkdownExporter struct {
	Labels Labels
}

func (e *MarkdownExporter) Name() string      { return FormatMarkdown }
func (e *MarkdownExporter) Extension() string { return ".md" }

// Export implements Exporter.
func (e *MarkdownExporter) Export(ctx context.Context, records []attribution.FinalRecord, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(destPath, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		bw.WriteString("# " + Heading + "\n")
		for _, r := range records {
			bw.WriteString("\n**" + e.Labels.For(r.Role) + ":** " + r.Text + "\n")
		}
		return bw.Flush()
	})
}

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"

	"github.com/otherjamesbrown/interview-scribe/pkg/attribution"
	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
)

// Placeholder marks the template paragraph replaced by the transcript.
const Placeholder = "{{TRANSCRIPCION}}"

const (
	documentPart = "word/document.xml"

	// Oficio paper with 2 cm margins.
	pageWidthMM  = 216
	pageHeightMM = 330
	marginCM     = 2

	bodyFont       = "Arial"
	bodyFontPoints = 11
)

// mmToTwips converts millimetres to twentieths of a point.
func mmToTwips(mm float64) int {
	return int(mm/25.4*1440 + 0.5)
}

// DocxExporter writes a Word document. With a template, paragraphs containing
// Placeholder are replaced by the transcript; without one, a standalone Oficio
// document is generated.
type DocxExporter struct {
	Labels       Labels
	TemplatePath string
}

func (e *DocxExporter) Name() string      { return FormatDocx }
func (e *DocxExporter) Extension() string { return ".docx" }

// Export implements Exporter.
func (e *DocxExporter) Export(ctx context.Context, records []attribution.FinalRecord, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.TemplatePath == "" {
		return e.writeBasic(records, destPath)
	}

	tmpl, err := zip.OpenReader(e.TemplatePath)
	if err != nil {
		return fmt.Errorf("opening template %s: %w", e.TemplatePath, err)
	}
	defer tmpl.Close()

	return writeAtomic(destPath, func(w io.Writer) error {
		return e.fillTemplate(&tmpl.Reader, records, w)
	})
}

func (e *DocxExporter) fillTemplate(r *zip.Reader, records []attribution.FinalRecord, w io.Writer) error {
	zw := zip.NewWriter(w)
	found := false
	for _, f := range r.File {
		if f.Name != documentPart {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}

		out, err := e.rewriteDocument(data, records)
		if err != nil {
			return err
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
		if _, err := fw.Write(out); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
		found = true
	}
	if !found {
		return fmt.Errorf("template has no %s: %w", documentPart, scerrors.ErrValidation)
	}
	return zw.Close()
}

// rewriteDocument replaces every placeholder paragraph with the transcript.
// Without a placeholder, a heading and the records are appended to the body.
func (e *DocxExporter) rewriteDocument(data []byte, records []attribution.FinalRecord) ([]byte, error) {
	doc, err := scanDocument(data)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	last := 0
	for _, p := range doc.paragraphs {
		if !strings.Contains(p.text, Placeholder) {
			continue
		}
		out.Write(data[last:p.start])
		for i, r := range records {
			writeParagraph(&out, p.props, e.Labels.Line(r))
			if i < len(records)-1 {
				writeParagraph(&out, p.props, " ")
			}
		}
		last = p.end
	}
	if last > 0 {
		out.Write(data[last:])
		return out.Bytes(), nil
	}

	out.Write(data[:doc.insertAt])
	writeHeading(&out)
	for _, r := range records {
		writeParagraph(&out, nil, e.Labels.Line(r))
	}
	out.Write(data[doc.insertAt:])
	return out.Bytes(), nil
}

type paragraphSpan struct {
	start, end int
	props      []byte
	text       string
}

type documentLayout struct {
	paragraphs []paragraphSpan
	// insertAt is where body content can be appended: before the
	// body-level section properties, or before </w:body>.
	insertAt int
}

// scanDocument locates the paragraphs that are direct children of w:body by
// byte offset so they can be replaced without re-serializing the rest of the
// document. Paragraphs in tables, text boxes and content controls are not
// listed.
func scanDocument(data []byte) (*documentLayout, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	layout := &documentLayout{insertAt: -1}

	var (
		depth      int
		bodyDepth  = -1
		paraDepth  = -1
		propsStart = -1
		inText     bool
		cur        paragraphSpan
		text       strings.Builder
	)
	for {
		offset := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case isW(t.Name, "body") && bodyDepth < 0:
				bodyDepth = depth
			case isW(t.Name, "sectPr") && bodyDepth > 0 && depth == bodyDepth+1:
				layout.insertAt = offset
			case isW(t.Name, "p") && paraDepth < 0 && bodyDepth > 0 && depth == bodyDepth+1:
				paraDepth = depth
				cur = paragraphSpan{start: offset}
				text.Reset()
			case isW(t.Name, "pPr") && paraDepth > 0 && depth == paraDepth+1:
				propsStart = offset
			case isW(t.Name, "t") && paraDepth > 0:
				inText = true
			}
		case xml.EndElement:
			end := int(dec.InputOffset())
			switch {
			case isW(t.Name, "body") && depth == bodyDepth:
				if layout.insertAt < 0 {
					layout.insertAt = offset
				}
			case isW(t.Name, "pPr") && depth == paraDepth+1 && propsStart >= 0:
				cur.props = data[propsStart:end]
				propsStart = -1
			case isW(t.Name, "p") && depth == paraDepth:
				cur.end = end
				cur.text = text.String()
				layout.paragraphs = append(layout.paragraphs, cur)
				paraDepth = -1
			case isW(t.Name, "t"):
				inText = false
			}
			depth--
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}

	if layout.insertAt < 0 {
		return nil, fmt.Errorf("%s has no body: %w", documentPart, scerrors.ErrValidation)
	}
	return layout, nil
}

func isW(name xml.Name, local string) bool {
	return name.Space == "w" && name.Local == local
}

var arialRunProps = fmt.Sprintf(`<w:rPr><w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:cs="%[1]s"/>`+
	`<w:sz w:val="%[2]d"/><w:szCs w:val="%[2]d"/></w:rPr>`, bodyFont, bodyFontPoints*2)

func writeParagraph(b *bytes.Buffer, props []byte, text string) {
	b.WriteString("<w:p>")
	b.Write(props)
	b.WriteString("<w:r>")
	b.WriteString(arialRunProps)
	b.WriteString(`<w:t xml:space="preserve">`)
	xml.EscapeText(b, []byte(text))
	b.WriteString("</w:t></w:r></w:p>")
}

func writeHeading(b *bytes.Buffer) {
	b.WriteString(`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>`)
	xml.EscapeText(b, []byte(Heading))
	b.WriteString("</w:t></w:r></w:p>")
}

// writeBasic generates a standalone Oficio document.
func (e *DocxExporter) writeBasic(records []attribution.FinalRecord, destPath string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if _, err := doc.AddHeading(Heading, 1); err != nil {
		return fmt.Errorf("adding heading: %w", err)
	}
	doc.AddEmptyParagraph()
	for _, r := range records {
		p := doc.AddEmptyParagraph()
		p.Justification(stypes.JustificationBoth)
		p.AddText(e.Labels.Line(r)).Font(bodyFont).Size(bodyFontPoints)
	}
	setOficioPage(doc.Document.Body)

	return saveAtomic(destPath, doc.SaveTo)
}

func setOficioPage(body *docx.Body) {
	if body.SectPr == nil {
		body.SectPr = &ctypes.SectionProp{}
	}
	width, height := uint64(mmToTwips(pageWidthMM)), uint64(mmToTwips(pageHeightMM))
	margin := mmToTwips(marginCM * 10)
	body.SectPr.PageSize = &ctypes.PageSize{Width: &width, Height: &height}
	body.SectPr.PageMargin = &ctypes.PageMargin{Top: &margin, Right: &margin, Bottom: &margin, Left: &margin}
}

// Package textextract produces the text-representation artifacts of a source
// document: a structured plain-text file and a minimal marked-up rendition.
// Extraction is best-effort; scanned memos often carry no text layer at all,
// which is exactly why the OCR stage exists.
package textextract

import (
	"fmt"
	"html"
	"os"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/echoma/occ-info-memo/internal/record"
)

// Extractor pulls the embedded text layer out of a source PDF.
type Extractor struct{}

// New builds an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract writes <number>.txt and <number>.html next to the source document.
// Both files are truncated and rewritten on every pass.
func (e *Extractor) Extract(dir record.Dir) error {
	pages, err := pageTexts(dir.PDFPath())
	if err != nil {
		return err
	}
	var plain strings.Builder
	for _, page := range pages {
		plain.WriteString(page)
		plain.WriteString("\n")
	}
	if err := os.WriteFile(dir.TextPath(), []byte(plain.String()), 0o644); err != nil {
		return fmt.Errorf("write text artifact: %w", err)
	}
	if err := os.WriteFile(dir.MarkupPath(), []byte(renderMarkup(dir.Number, pages)), 0o644); err != nil {
		return fmt.Errorf("write markup artifact: %w", err)
	}
	return nil
}

func pageTexts(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()
	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d of %s: %w", i, path, err)
		}
		pages = append(pages, content)
	}
	return pages, nil
}

func renderMarkup(number int, pages []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head><title>%d</title></head>\n<body>\n", number)
	for i, page := range pages {
		fmt.Fprintf(&b, "<div class=\"page\" data-page=\"%d\"><pre>%s</pre></div>\n", i+1, html.EscapeString(page))
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

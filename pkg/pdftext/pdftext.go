// Package pdftext pulls plain text out of PDF files page by page.
package pdftext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"rsc.io/pdf"

	"github.com/xhad/agrigenius/internal/models"
)

// Extractor reads PDFs from the local filesystem.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract returns the whole file as one Document, pages joined by newlines.
func (e *Extractor) Extract(path string) (models.Document, error) {
	pages, err := e.Pages(path)
	if err != nil {
		return models.Document{}, err
	}

	empty := 0
	for _, p := range pages {
		if p == "" {
			empty++
		}
	}

	return models.Document{
		ID:      path,
		Source:  path,
		Kind:    models.SourcePDF,
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: strings.Join(pages, "\n"),
		Metadata: map[string]interface{}{
			"pages":      len(pages),
			"emptyPages": empty,
		},
	}, nil
}

// Pages returns the text of each page in order. Pages without extractable
// text, including ones the decoder chokes on, come back as "".
func (e *Extractor) Pages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "open PDF", goerr.V("path", path))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, goerr.Wrap(err, "stat PDF", goerr.V("path", path))
	}

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, goerr.Wrap(err, "parse PDF", goerr.V("path", path))
	}

	n, err := numPages(r)
	if err != nil {
		return nil, goerr.Wrap(err, "read page tree", goerr.V("path", path))
	}

	pages := make([]string, n)
	for i := 1; i <= n; i++ {
		pages[i-1] = pageText(r, i)
	}
	return pages, nil
}

func numPages(r *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return r.NumPage(), nil
}

// pageText concatenates the glyphs of page i, starting a new line whenever
// the baseline moves.
func pageText(r *pdf.Reader, i int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()

	p := r.Page(i)
	if p.V.IsNull() {
		return ""
	}

	var sb strings.Builder
	var lastY float64
	for j, t := range p.Content().Text {
		if j > 0 && t.Y != lastY {
			sb.WriteByte('\n')
		}
		lastY = t.Y
		sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
	}
	return strings.TrimSpace(sb.String())
}

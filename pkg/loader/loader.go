// Package loader gathers the raw text the knowledge base is built from.
package loader

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/internal/models"
	"github.com/xhad/agrigenius/internal/types"
)

type Loader struct {
	Fetcher   types.Fetcher
	Extractor types.Extractor

	// OnSource is called before each source is read.
	OnSource func(kind models.SourceKind, source string)
}

func New(fetcher types.Fetcher, extractor types.Extractor) *Loader {
	return &Loader{Fetcher: fetcher, Extractor: extractor}
}

// Load returns one Document per source, URLs first and then PDFs, each group
// in the given order. A source listed twice is read once. Any failure aborts
// the whole load.
func (l *Loader) Load(ctx context.Context, urls, pdfs []string) ([]models.Document, error) {
	logger := logging.From(ctx)
	urls, pdfs = dedupe(ctx, urls, pdfs)
	docs := make([]models.Document, 0, len(urls)+len(pdfs))

	for _, u := range urls {
		if l.OnSource != nil {
			l.OnSource(models.SourceURL, u)
		}
		doc, err := l.Fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, goerr.Wrap(err, "load URL", goerr.V("url", u))
		}
		logger.Debug("fetched URL", "url", u, "chars", len(doc.Content))
		docs = append(docs, doc)
	}

	for _, p := range pdfs {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "load cancelled")
		}
		if l.OnSource != nil {
			l.OnSource(models.SourcePDF, p)
		}
		doc, err := l.Extractor.Extract(p)
		if err != nil {
			return nil, goerr.Wrap(err, "load PDF", goerr.V("path", p))
		}
		logger.Debug("extracted PDF", "path", p, "chars", len(doc.Content))
		docs = append(docs, doc)
	}

	logger.Info("loaded sources", "urls", len(urls), "pdfs", len(pdfs))
	return docs, nil
}

// dedupe drops repeated sources, keeping the first occurrence. Chunk IDs are
// derived from the source, so a repeat would collide in the index.
func dedupe(ctx context.Context, urls, pdfs []string) ([]string, []string) {
	seen := make(map[string]bool, len(urls)+len(pdfs))
	keep := func(sources []string) []string {
		out := make([]string, 0, len(sources))
		for _, src := range sources {
			if seen[src] {
				logging.From(ctx).Warn("skipping duplicate source", "source", src)
				continue
			}
			seen[src] = true
			out = append(out, src)
		}
		return out
	}
	return keep(urls), keep(pdfs)
}

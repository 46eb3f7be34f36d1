// Package knowledge owns the vector index lifecycle: load an existing index
// or build one from the configured sources, then answer similarity searches.
package knowledge

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/agrigenius/internal/logging"
	"github.com/xhad/agrigenius/internal/models"
	"github.com/xhad/agrigenius/internal/types"
)

// SourceLoader reads the raw documents. *loader.Loader implements it.
type SourceLoader interface {
	Load(ctx context.Context, urls, pdfs []string) ([]models.Document, error)
}

type Stage string

const (
	StageLoad  Stage = "load"
	StageChunk Stage = "chunk"
	StageEmbed Stage = "embed"
	StageStore Stage = "store"
)

type Options struct {
	Store    types.VectorStore
	Embedder embeddings.Embedder
	Loader   SourceLoader
	Chunker  types.Chunker

	URLs []string
	PDFs []string

	TopK      int // default 3
	BatchSize int // texts per embedding call, default 64

	// OnProgress reports ingestion progress. total is 0 when unknown.
	OnProgress func(stage Stage, done, total int)
}

// Base is the read-only knowledge base used to answer questions.
type Base struct {
	store    types.VectorStore
	embedder embeddings.Embedder
	topK     int
	ingested bool
}

var _ types.Searcher = (*Base)(nil)

// Open returns a Base over opts.Store. When the store already exists nothing
// is fetched or read; otherwise every source is loaded, chunked, embedded and
// written in one pass.
func Open(ctx context.Context, opts Options) (*Base, error) {
	if opts.Store == nil || opts.Embedder == nil {
		return nil, goerr.New("knowledge base needs a store and an embedder")
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}

	b := &Base{store: opts.Store, embedder: opts.Embedder, topK: opts.TopK}
	logger := logging.From(ctx)

	exists, err := opts.Store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		n, err := opts.Store.Count(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded existing vector index", "chunks", n)
		return b, nil
	}

	if opts.Loader == nil || opts.Chunker == nil {
		return nil, goerr.New("no vector index found and no ingestion pipeline configured")
	}
	if err := b.ingest(ctx, opts); err != nil {
		return nil, err
	}
	b.ingested = true
	return b, nil
}

func (b *Base) ingest(ctx context.Context, opts Options) error {
	logger := logging.From(ctx)
	started := time.Now()
	progress := func(stage Stage, done, total int) {
		if opts.OnProgress != nil {
			opts.OnProgress(stage, done, total)
		}
	}

	progress(StageLoad, 0, len(opts.URLs)+len(opts.PDFs))
	docs, err := opts.Loader.Load(ctx, opts.URLs, opts.PDFs)
	if err != nil {
		return goerr.Wrap(err, "ingest: load sources")
	}
	progress(StageLoad, len(docs), len(docs))

	chunks, err := opts.Chunker.Process(docs)
	if err != nil {
		return goerr.Wrap(err, "ingest: chunk documents")
	}
	progress(StageChunk, len(chunks), len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(texts))
		batch, err := b.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return goerr.Wrap(err, "ingest: embed chunks", goerr.V("offset", start))
		}
		if len(batch) != end-start {
			return goerr.New("ingest: embedder returned wrong number of vectors",
				goerr.V("want", end-start), goerr.V("got", len(batch)))
		}
		vectors = append(vectors, batch...)
		progress(StageEmbed, end, len(texts))
	}

	if err := b.store.Store(ctx, chunks, vectors); err != nil {
		return goerr.Wrap(err, "ingest: persist index")
	}
	progress(StageStore, len(chunks), len(chunks))

	logger.Info("built vector index",
		"documents", len(docs),
		"chunks", len(chunks),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// Ingested reports whether Open built the index rather than loading it.
func (b *Base) Ingested() bool {
	return b.ingested
}

func (b *Base) TopK() int {
	return b.topK
}

// Search embeds question and returns the TopK nearest chunks.
func (b *Base) Search(ctx context.Context, question string) ([]models.ScoredChunk, error) {
	vec, err := b.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, goerr.Wrap(err, "embed question")
	}
	hits, err := b.store.Query(ctx, vec, b.topK)
	if err != nil {
		return nil, goerr.Wrap(err, "query vector index")
	}
	return hits, nil
}

func (b *Base) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}

func (b *Base) Close() error {
	return b.store.Close()
}

// Retriever adapts the base to langchaingo's schema.Retriever.
func (b *Base) Retriever() schema.Retriever {
	return retriever{base: b}
}

type retriever struct {
	base *Base
}

func (r retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	hits, err := r.base.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return ToDocuments(hits), nil
}

// ToDocuments converts scored chunks into langchaingo documents.
func ToDocuments(hits []models.ScoredChunk) []schema.Document {
	docs := make([]schema.Document, len(hits))
	for i, h := range hits {
		docs[i] = schema.Document{
			PageContent: h.Text,
			Score:       h.Score,
			Metadata: map[string]any{
				"source":   h.Source,
				"chunk_id": h.ID,
				"offset":   h.Offset,
			},
		}
	}
	return docs
}

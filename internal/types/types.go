package types

import (
	"context"

	"github.com/xhad/agrigenius/internal/models"
)

// Core interfaces shared by the ingestion and answering packages.

// Fetcher downloads the text behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

// Extractor reads the text out of a local PDF file.
type Extractor interface {
	Extract(path string) (models.Document, error)
}

// Chunker splits documents into retrieval units.
type Chunker interface {
	Process(docs []models.Document) ([]models.Chunk, error)
}

// VectorStore persists chunk embeddings and answers nearest-neighbour queries.
type VectorStore interface {
	Exists(ctx context.Context) (bool, error)
	Store(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Searcher returns the chunks most similar to a question.
type Searcher interface {
	Search(ctx context.Context, question string) ([]models.ScoredChunk, error)
}

// Generator sends a filled prompt to a language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

package models

import "fmt"

// SourceKind tells where a Document's text came from.
type SourceKind string

const (
	SourceURL SourceKind = "url"
	SourcePDF SourceKind = "pdf"
)

// Document is the raw text of one ingestion source. It is discarded once chunked.
type Document struct {
	ID       string
	Source   string // URL or file path
	Kind     SourceKind
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a bounded window of a Document's text. Identity is positional:
// the source plus the rune offset of the window's first character.
type Chunk struct {
	ID     string
	Source string
	Index  int
	Offset int
	Text   string
}

// NewChunk builds a chunk with its positional ID.
func NewChunk(source string, index, offset int, text string) Chunk {
	return Chunk{
		ID:     ChunkID(source, index),
		Source: source,
		Index:  index,
		Offset: offset,
		Text:   text,
	}
}

func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s#%d", source, index)
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk
	Score float32
}

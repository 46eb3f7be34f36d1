package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xhad/agrigenius/internal/models"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// ErrInvalidWindow is returned when the overlap does not fit inside a chunk.
var ErrInvalidWindow = goerr.New("chunk overlap must be >= 0 and < chunk size")

type ProcessorConfig struct {
	ChunkSize    int // in characters (runes)
	ChunkOverlap int
}

// Processor cuts text into fixed-size overlapping character windows.
type Processor struct {
	config ProcessorConfig
}

var _ textsplitter.TextSplitter = (*Processor)(nil)

// NewWithConfig fills in defaults when the whole config is zero; a set
// ChunkSize with a zero ChunkOverlap means no overlap.
func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 && config.ChunkOverlap == 0 {
		config.ChunkSize = DefaultChunkSize
		config.ChunkOverlap = DefaultChunkOverlap
	}
	if config.ChunkSize <= 0 || config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, goerr.Wrap(ErrInvalidWindow, "new processor",
			goerr.V("chunk_size", config.ChunkSize), goerr.V("chunk_overlap", config.ChunkOverlap))
	}

	return &Processor{config: config}, nil
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// Span is one window and the rune offset where it starts.
type Span struct {
	Offset int
	Text   string
}

// Split returns the windows of text in order. Each window holds ChunkSize
// runes except possibly the last, which always ends at the end of text.
// Windows are cut from the original bytes, so an invalid UTF-8 byte counts as
// one rune and is kept as is.
func (p *Processor) Split(text string) []Span {
	bounds := runeStarts(text)
	n := len(bounds) - 1
	if n == 0 {
		return nil
	}

	step := p.config.ChunkSize - p.config.ChunkOverlap
	var spans []Span
	for start := 0; ; start += step {
		end := min(start+p.config.ChunkSize, n)
		spans = append(spans, Span{Offset: start, Text: text[bounds[start]:bounds[end]]})
		if end == n {
			break
		}
	}
	return spans
}

// runeStarts returns the byte offset of every rune in s followed by len(s).
func runeStarts(s string) []int {
	bounds := make([]int, 0, len(s)+1)
	for i := 0; i < len(s); {
		bounds = append(bounds, i)
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return append(bounds, len(s))
}

// SplitText implements textsplitter.TextSplitter.
func (p *Processor) SplitText(text string) ([]string, error) {
	spans := p.Split(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out, nil
}

// Process chunks every document, keeping document order.
func (p *Processor) Process(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, doc := range docs {
		if doc.Source == "" {
			return nil, goerr.New("document has no source", goerr.V("id", doc.ID))
		}
		for i, span := range p.Split(doc.Content) {
			chunks = append(chunks, models.NewChunk(doc.Source, i, span.Offset, span.Text))
		}
	}
	return chunks, nil
}

// Reassemble undoes Split: the first window whole, then each following
// window without its leading overlap.
func Reassemble(windows []string, overlap int) string {
	var sb strings.Builder
	for i, w := range windows {
		if i == 0 {
			sb.WriteString(w)
			continue
		}
		bounds := runeStarts(w)
		if overlap < len(bounds)-1 {
			sb.WriteString(w[bounds[overlap]:])
		}
	}
	return sb.String()
}

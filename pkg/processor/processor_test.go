package processor_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xhad/agrigenius/internal/models"
	"github.com/xhad/agrigenius/pkg/processor"
)

const sample = "Rice is grown in flooded fields. Wheat prefers cool winters. " +
	"Sugarcane needs heat and plenty of water. Corn is sown in the monsoon. " +
	"Soil testing helps farmers choose fertiliser doses - खेत की मिट्टी."

func TestNewWithConfig(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)
	assert.Equal(t, processor.ProcessorConfig{ChunkSize: 500, ChunkOverlap: 100}, p.Config())

	p, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 40})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Config().ChunkOverlap)

	for _, cfg := range []processor.ProcessorConfig{
		{ChunkSize: 10, ChunkOverlap: 10},
		{ChunkSize: 10, ChunkOverlap: 11},
		{ChunkSize: 10, ChunkOverlap: -1},
		{ChunkSize: -5, ChunkOverlap: 0},
	} {
		_, err := processor.NewWithConfig(cfg)
		assert.True(t, errors.Is(err, processor.ErrInvalidWindow), "%+v", cfg)
	}
}

func TestSplitProperties(t *testing.T) {
	tests := []struct {
		size, overlap int
		text          string
	}{
		{size: 20, overlap: 5, text: sample},
		{size: 7, overlap: 0, text: sample},
		{size: 30, overlap: 29, text: sample},
		{size: 500, overlap: 100, text: sample},
		{size: 10, overlap: 3, text: "exactly10!"},
		{size: 10, overlap: 3, text: "short"},
		{size: 4, overlap: 1, text: "ab"},
		{size: 4, overlap: 1, text: "ab\xffcdefg"},
		{size: 3, overlap: 2, text: "caf\xe9 \xe0 la cr\xe8me"},
	}

	for _, tt := range tests {
		p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: tt.size, ChunkOverlap: tt.overlap})
		require.NoError(t, err)

		windows, err := p.SplitText(tt.text)
		require.NoError(t, err)
		require.NotEmpty(t, windows)

		// reconstruction
		assert.Equal(t, tt.text, processor.Reassemble(windows, tt.overlap))

		for i, w := range windows {
			n := utf8.RuneCountInString(w)
			assert.LessOrEqual(t, n, tt.size)
			if i < len(windows)-1 {
				assert.Equal(t, tt.size, n)

				// consecutive windows share exactly the overlap
				prev := []rune(w)
				next := []rune(windows[i+1])
				assert.Equal(t, string(prev[len(prev)-tt.overlap:]), string(next[:tt.overlap]))
			}
		}

		// the last window ends at the end of the text
		assert.True(t, strings.HasSuffix(tt.text, windows[len(windows)-1]))
	}
}

func TestSplitOffsets(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})
	require.NoError(t, err)

	spans := p.Split("abcdefghij")
	assert.Equal(t, []processor.Span{
		{Offset: 0, Text: "abcd"},
		{Offset: 3, Text: "defg"},
		{Offset: 6, Text: "ghij"},
	}, spans)

	assert.Nil(t, p.Split(""))
}

func TestSplitKeepsInvalidUTF8(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})
	require.NoError(t, err)

	text := "ab\xffcdefg"
	spans := p.Split(text)
	assert.Equal(t, []processor.Span{
		{Offset: 0, Text: "ab\xffc"},
		{Offset: 3, Text: "cdef"},
		{Offset: 6, Text: "fg"},
	}, spans)

	windows, err := p.SplitText(text)
	require.NoError(t, err)
	assert.Equal(t, text, processor.Reassemble(windows, 1))
}

func TestSplitIsDeterministic(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 25, ChunkOverlap: 5})
	require.NoError(t, err)
	assert.Equal(t, p.Split(sample), p.Split(sample))
}

func TestProcess(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})
	require.NoError(t, err)

	docs := []models.Document{
		{Source: "https://mospi.gov.in/stats", Content: "abcdefg"},
		{Source: "Data/farmerbook.pdf", Content: ""},
		{Source: "Data/schemes.pdf", Content: "xyz"},
	}

	chunks, err := p.Process(docs)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, models.NewChunk("https://mospi.gov.in/stats", 0, 0, "abcd"), chunks[0])
	assert.Equal(t, models.NewChunk("https://mospi.gov.in/stats", 1, 3, "defg"), chunks[1])
	assert.Equal(t, "Data/schemes.pdf#0", chunks[2].ID)
	assert.Equal(t, "xyz", chunks[2].Text)

	_, err = p.Process([]models.Document{{Content: "orphan"}})
	assert.Error(t, err)
}

func TestSplitDocumentsWithLangchain(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4, ChunkOverlap: 1})
	require.NoError(t, err)

	docs, err := textsplitter.SplitDocuments(p, []schema.Document{
		{PageContent: "abcdefg", Metadata: map[string]any{"source": "a"}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "abcd", docs[0].PageContent)
	assert.Equal(t, "defg", docs[1].PageContent)
	assert.Equal(t, "a", docs[1].Metadata["source"])
}

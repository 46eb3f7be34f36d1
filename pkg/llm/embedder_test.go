package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/agrigenius/pkg/llm"
)

func TestOpenAIEmbedder(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// answer in reverse order to check that results are re-sorted
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	emb, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:   "openai",
		BaseURL:    srv.URL,
		APIKey:     "sk-test",
		BatchSize:  2,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	vecs, err := emb.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}}, vecs)
	assert.EqualValues(t, 2, requests.Load())

	q, err := emb.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, q)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text:latest", req.Model)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{float32(len(req.Prompt)), 0.5},
		})
	}))
	defer srv.Close()

	emb, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider:   "ollama",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	vecs, err := emb.EmbedDocuments(context.Background(), []string{"rice", "wheat\ncrop"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{4, 0.5}, {10, 0.5}}, vecs)
}

func TestNewEmbedderErrors(t *testing.T) {
	_, err := llm.NewEmbedder(llm.EmbedderConfig{Provider: "volcengine"})
	assert.True(t, errors.Is(err, llm.ErrUnknownProvider))

	_, err = llm.NewEmbedder(llm.EmbedderConfig{Provider: "openai"})
	assert.Error(t, err)
}

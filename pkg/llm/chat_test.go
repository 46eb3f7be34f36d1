package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/agrigenius/pkg/llm"
)

// fakeGroq answers /chat/completions like an OpenAI-compatible server and
// records the last request body.
func fakeGroq(t *testing.T, reply string, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&last))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "llama-3.1-8b-instant",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{APIKey: "gsk-test"})
	require.NoError(t, err)

	cfg := engine.Config()
	assert.Equal(t, "llama-3.1-8b-instant", cfg.Model)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.BaseURL)
	assert.Equal(t, 512, cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.1, *cfg.Temperature)

	_, err = llm.NewWithConfig(llm.ChatConfig{})
	assert.True(t, errors.Is(err, llm.ErrMissingAPIKey))

	_, err = llm.NewWithConfig(llm.ChatConfig{APIKey: "k", Temperature: ptr(3.0)})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{APIKey: "k", MaxTokens: -1})
	assert.Error(t, err)
}

func TestGenerateAgainstHostedAPI(t *testing.T) {
	srv, last := fakeGroq(t, "Use drip irrigation.", http.StatusOK)

	engine, err := llm.NewWithConfig(llm.ChatConfig{
		APIKey:     "gsk-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	out, err := engine.Generate(context.Background(), "How do I save water?")
	require.NoError(t, err)
	assert.Equal(t, "Use drip irrigation.", out)

	body := *last
	assert.Equal(t, "llama-3.1-8b-instant", body["model"])
	assert.Equal(t, 0.1, body["temperature"])
	maxTokens := body["max_completion_tokens"]
	if maxTokens == nil {
		maxTokens = body["max_tokens"]
	}
	assert.EqualValues(t, 512, maxTokens)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "role")
}

func TestGenerateError(t *testing.T) {
	srv, _ := fakeGroq(t, "", http.StatusTooManyRequests)

	engine, err := llm.NewWithConfig(llm.ChatConfig{
		APIKey:     "gsk-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), "anything")
	assert.Error(t, err)
}

type recordingModel struct {
	prompts []string
	opts    llms.CallOptions
}

func (m *recordingModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&m.opts)
	}
	for _, msg := range msgs {
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tc.Text)
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func ptr[T any](v T) *T { return &v }

func TestZeroTemperatureIsKept(t *testing.T) {
	model := &recordingModel{}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Temperature: ptr(0.0)})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), "filled prompt")
	require.NoError(t, err)
	assert.Equal(t, 0.0, model.opts.Temperature)
	assert.Equal(t, 0.0, *engine.Config().Temperature)
}

func TestNewWithModel(t *testing.T) {
	model := &recordingModel{}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{MaxTokens: 64, Temperature: ptr(0.3)})
	require.NoError(t, err)

	out, err := engine.Generate(context.Background(), "filled prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []string{"filled prompt"}, model.prompts)
	assert.Equal(t, 64, model.opts.MaxTokens)
	assert.Equal(t, 0.3, model.opts.Temperature)
}

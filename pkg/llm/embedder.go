package llm

import (
	"context"
	"net/http"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Provider   string // "ollama" | "openai"
	Model      string
	BaseURL    string
	APIKey     string
	BatchSize  int
	HTTPClient *http.Client
}

// ErrUnknownProvider is returned for an unsupported embedding provider.
var ErrUnknownProvider = goerr.New("unknown embedding provider")

// NewEmbedder builds a langchaingo embedder backed by the configured provider.
func NewEmbedder(config EmbedderConfig) (embeddings.Embedder, error) {
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}

		opts := []ollama.Option{
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		}
		if config.HTTPClient != nil {
			opts = append(opts, ollama.WithHTTPClient(config.HTTPClient))
		}
		emb, err := ollama.New(opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize ollama embedder", goerr.V("base_url", config.BaseURL))
		}
		client = emb

	case "openai":
		emb, err := NewOpenAIEmbedder(config)
		if err != nil {
			return nil, err
		}
		client = emb

	default:
		return nil, goerr.Wrap(ErrUnknownProvider, "new embedder", goerr.V("provider", config.Provider))
	}

	return embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *goopenai.Client
	model  string
}

var _ embeddings.EmbedderClient = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(config EmbedderConfig) (*OpenAIEmbedder, error) {
	if config.APIKey == "" {
		return nil, goerr.New("openai embedder requires an API key")
	}
	if config.Model == "" {
		config.Model = string(goopenai.SmallEmbedding3)
	}

	cfg := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	if config.HTTPClient != nil {
		cfg.HTTPClient = config.HTTPClient
	}

	return &OpenAIEmbedder{
		client: goopenai.NewClientWithConfig(cfg),
		model:  config.Model,
	}, nil
}

// CreateEmbedding returns one vector per text, in input order.
func (e *OpenAIEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "create embeddings", goerr.V("model", e.model), goerr.V("texts", len(texts)))
	}
	if len(resp.Data) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("want", len(texts)), goerr.V("got", len(resp.Data)))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

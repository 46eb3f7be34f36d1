package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature *float64 // nil means 0.1
	MaxTokens   int
	BaseURL     string // OpenAI-compatible endpoint, Groq by default
	APIKey      string
	Timeout     time.Duration // 0 leaves the deadline to the caller
	HTTPClient  *http.Client
}

// ChatEngine sends filled prompts to a hosted model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// ErrMissingAPIKey is returned when the hosted model has no credentials.
var ErrMissingAPIKey = goerr.New("missing LLM API key")

func (c *ChatConfig) applyDefaults() error {
	if c.Model == "" {
		c.Model = "llama-3.1-8b-instant"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Temperature == nil {
		t := 0.1
		c.Temperature = &t
	}
	if t := *c.Temperature; t < 0 || t > 2 {
		return goerr.New("temperature must be between 0 and 2", goerr.V("temperature", t))
	}
	if c.MaxTokens < 0 {
		return goerr.New("max tokens cannot be negative", goerr.V("max_tokens", c.MaxTokens))
	} else if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	return nil
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
		openai.WithBaseURL(config.BaseURL),
	}
	if config.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(config.HTTPClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize LLM", goerr.V("model", config.Model))
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func (ce *ChatEngine) Config() ChatConfig {
	return ce.config
}

// Generate returns the model's reply to prompt verbatim.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string) (string, error) {
	if ce.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ce.config.Timeout)
		defer cancel()
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, ce.llm, prompt,
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(*ce.config.Temperature),
	)
	if err != nil {
		return "", goerr.Wrap(err, "chat error", goerr.V("model", ce.config.Model))
	}
	return out, nil
}

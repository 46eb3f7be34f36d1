package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "LLM base URL is required",
		})
	} else if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid LLM base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unsupported embedding provider: %s", c.Embedding.Provider),
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate index config
	switch c.Index.Backend {
	case "sqlite":
		if c.Index.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "index.path",
				Message: "path is required for the sqlite backend",
			})
		}
	case "pgvector":
		if _, err := url.Parse(c.Index.DatabaseURL); err != nil || c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "invalid database URL",
			})
		}
		if c.Index.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "index.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unsupported index backend: %s", c.Index.Backend),
		})
	}

	if c.Index.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.top_k",
			Message: "top_k must be positive",
		})
	}

	// Validate loader config
	if c.Loader.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "loader.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Loader.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "loader.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Loader.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "loader.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	for _, raw := range c.Loader.URLs {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "loader.urls",
				Message: fmt.Sprintf("invalid URL: %s", raw),
			})
		}
	}

	// Validate extensions format
	for _, ext := range c.Loader.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "loader.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate waste config
	if c.Waste.NTrees < 1 {
		errors = append(errors, ValidationError{
			Field:   "waste.n_trees",
			Message: "n_trees must be positive",
		})
	}

	if c.Waste.TestSize <= 0 || c.Waste.TestSize >= 1 {
		errors = append(errors, ValidationError{
			Field:   "waste.test_size",
			Message: "test_size must be between 0 and 1 (exclusive)",
		})
	}

	if c.Waste.MaxDepth < 0 || c.Waste.MinSamplesLeaf < 1 {
		errors = append(errors, ValidationError{
			Field:   "waste.max_depth",
			Message: "max_depth must not be negative and min_samples_leaf must be positive",
		})
	}

	return errors
}

// ErrInvalidConfig wraps the first validation failures for callers that want a single error.
var ErrInvalidConfig = goerr.New("invalid configuration")

// Check runs Validate and folds the result into one error.
func (c *Config) Check() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return goerr.Wrap(ErrInvalidConfig, strings.Join(msgs, "; "), goerr.V("count", len(errs)))
}

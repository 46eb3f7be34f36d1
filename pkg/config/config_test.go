package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GROQ_API_KEY", "GROQ_BASE_URL", "OLLAMA_BASE_URL", "OPENAI_API_KEY", "DATABASE_URL", "AGRIGENIUS_VECTOR_DB"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:8080/v1"
  model: "llama-3.1-70b"
  max_tokens: 1000
  temperature: 0.5

embedding:
  provider: "openai"
  batch_size: 16

index:
  backend: "pgvector"
  database_url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  vector_dim: 1536
  top_k: 5

loader:
  urls:
    - "https://example.com/stats"
  pdf_files: []
  timeout: 3s
  rate_limit: 1.5

processor:
  chunk_size: 800
  chunk_overlap: 50

waste:
  dataset_path: "data/waste.csv"
  n_trees: 10
  lenient_categories: true

log:
  level: debug
  format: json
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "http://localhost:8080/v1", config.LLM.BaseURL)
	assert.Equal(t, "llama-3.1-70b", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "openai", config.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", config.Embedding.Model)
	assert.Equal(t, 16, config.Embedding.BatchSize)
	assert.Equal(t, "postgres://localhost:5432/test", config.Index.DatabaseURL)
	assert.Equal(t, 5, config.Index.TopK)
	assert.Equal(t, []string{"https://example.com/stats"}, config.Loader.URLs)
	assert.Empty(t, config.Loader.PDFFiles)
	assert.Equal(t, 3*time.Second, config.Loader.Timeout)
	assert.Equal(t, 800, config.Processor.ChunkSize)
	assert.Equal(t, 50, config.Processor.ChunkOverlap)
	assert.Equal(t, "data/waste.csv", config.Waste.DatasetPath)
	assert.Equal(t, 10, config.Waste.NTrees)
	assert.True(t, config.Waste.LenientCategories)
	assert.Equal(t, int64(42), config.Waste.Seed)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)

	assert.Empty(t, config.Validate())
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultLLMBaseURL, config.LLM.BaseURL)
	assert.Equal(t, DefaultLLMModel, config.LLM.Model)
	assert.Equal(t, 512, config.LLM.MaxTokens)
	assert.Equal(t, 0.1, config.LLM.Temperature)
	assert.Equal(t, "ollama", config.Embedding.Provider)
	assert.Equal(t, "http://localhost:11434", config.Embedding.BaseURL)
	assert.Equal(t, "sqlite", config.Index.Backend)
	assert.Equal(t, "vector_db", config.Index.Path)
	assert.Equal(t, 3, config.Index.TopK)
	assert.Equal(t, 15*time.Second, config.Loader.Timeout)
	assert.Len(t, config.Loader.PDFFiles, 2)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 100, config.Processor.ChunkOverlap)
	assert.Equal(t, 100, config.Waste.NTrees)
	assert.Equal(t, 0.2, config.Waste.TestSize)
	assert.False(t, config.Waste.LenientCategories)

	assert.Empty(t, config.Validate())
	assert.NoError(t, config.Check())
}

func TestExplicitZeroValues(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name        string
		yaml        string
		temperature float64
		size        int
		overlap     int
	}{
		{
			name:        "zeros are kept",
			yaml:        "llm:\n  temperature: 0\nprocessor:\n  chunk_overlap: 0\n",
			temperature: 0,
			size:        500,
			overlap:     0,
		},
		{
			name:        "small chunk without overlap",
			yaml:        "processor:\n  chunk_size: 50\n",
			temperature: 0.1,
			size:        50,
			overlap:     10,
		},
		{
			name:        "small chunk with explicit overlap",
			yaml:        "processor:\n  chunk_size: 50\n  chunk_overlap: 5\n",
			temperature: 0.1,
			size:        50,
			overlap:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			config, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, tt.temperature, config.LLM.Temperature)
			assert.Equal(t, tt.size, config.Processor.ChunkSize)
			assert.Equal(t, tt.overlap, config.Processor.ChunkOverlap)
			assert.Empty(t, config.Validate())
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("llm: [unterminated"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "invalid llm",
			mutate: func(c *Config) {
				c.LLM.BaseURL = "invalid-url"
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
			},
			expectedErrs: 3,
			errorMessages: []string{
				"llm.base_url: invalid LLM base URL",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name: "pgvector without database",
			mutate: func(c *Config) {
				c.Index.Backend = "pgvector"
				c.Index.DatabaseURL = ""
				c.Index.VectorDim = -1
			},
			expectedErrs: 2,
			errorMessages: []string{
				"index.database_url: invalid database URL",
				"index.vector_dim: vector_dim must be positive",
			},
		},
		{
			name: "unknown backends",
			mutate: func(c *Config) {
				c.Embedding.Provider = "volcengine"
				c.Index.Backend = "chroma"
			},
			expectedErrs: 2,
			errorMessages: []string{
				"embedding.provider: unsupported embedding provider: volcengine",
				"index.backend: unsupported index backend: chroma",
			},
		},
		{
			name: "overlap not below chunk size",
			mutate: func(c *Config) {
				c.Processor.ChunkSize = 100
				c.Processor.ChunkOverlap = 100
			},
			expectedErrs: 1,
			errorMessages: []string{
				"processor.chunk_overlap",
			},
		},
		{
			name: "bad loader and waste settings",
			mutate: func(c *Config) {
				c.Loader.URLs = []string{"not a url"}
				c.Waste.TestSize = 1
				c.Waste.NTrees = 0
			},
			expectedErrs: 3,
			errorMessages: []string{
				"loader.urls: invalid URL: not a url",
				"waste.n_trees: n_trees must be positive",
				"waste.test_size",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			config, err := getDefaultConfig()
			require.NoError(t, err)
			tt.mutate(config)

			errors := config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			if tt.errorMessages != nil {
				for i, msg := range tt.errorMessages {
					assert.Contains(t, errors[i].Error(), msg)
				}
			}
		})
	}
}

func TestCheckWrapsValidationErrors(t *testing.T) {
	clearEnv(t)
	config, err := getDefaultConfig()
	require.NoError(t, err)
	config.Index.TopK = 0

	err = config.Check()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "index.top_k")
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("AGRIGENIUS_VECTOR_DB", "/var/lib/agrigenius/index")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "gsk-test", config.LLM.APIKey)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Index.DatabaseURL)
	assert.Equal(t, "/var/lib/agrigenius/index", config.Index.Path)
	assert.NoError(t, config.RequireAPIKey())
}

func TestRequireAPIKey(t *testing.T) {
	clearEnv(t)
	config, err := getDefaultConfig()
	require.NoError(t, err)

	err = config.RequireAPIKey()
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

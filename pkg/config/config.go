package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/xhad/agrigenius/internal/logging"
)

// Hosted LLM defaults. The chat endpoint speaks the OpenAI wire format.
const (
	DefaultLLMBaseURL = "https://api.groq.com/openai/v1"
	DefaultLLMModel   = "llama-3.1-8b-instant"
)

type Config struct {
	LLM struct {
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		APIKey      string        `yaml:"api_key" masq:"secret"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Embedding struct {
		Provider  string `yaml:"provider"` // "ollama" | "openai"
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key" masq:"secret"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedding"`

	Index struct {
		Backend     string `yaml:"backend"` // "sqlite" | "pgvector"
		Path        string `yaml:"path"`
		DatabaseURL string `yaml:"database_url" masq:"secret"`
		TableName   string `yaml:"table_name"`
		VectorDim   int    `yaml:"vector_dim"`
		TopK        int    `yaml:"top_k"`
	} `yaml:"index"`

	Loader struct {
		URLs              []string      `yaml:"urls"`
		PDFFiles          []string      `yaml:"pdf_files"`
		Timeout           time.Duration `yaml:"timeout"`
		RateLimit         float64       `yaml:"rate_limit"`
		MaxDepth          int           `yaml:"max_depth"`
		IgnorePatterns    []string      `yaml:"ignore_patterns"`
		AllowedExtensions []string      `yaml:"allowed_extensions"`
	} `yaml:"loader"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Waste struct {
		Addr              string  `yaml:"addr"`
		DatasetPath       string  `yaml:"dataset_path"`
		NTrees            int     `yaml:"n_trees"`
		TestSize          float64 `yaml:"test_size"`
		Seed              int64   `yaml:"seed"`
		MaxDepth          int     `yaml:"max_depth"`
		MinSamplesLeaf    int     `yaml:"min_samples_leaf"`
		LenientCategories bool    `yaml:"lenient_categories"`
	} `yaml:"waste"`

	Log logging.Config `yaml:"log"`
}

// ErrMissingAPIKey is returned by RequireAPIKey when no hosted LLM key is configured.
var ErrMissingAPIKey = goerr.New("GROQ_API_KEY not set")

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/agrigenius/config.yaml"),
			"/etc/agrigenius/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "error reading config file", goerr.V("path", path))
	}

	// Keys missing from the file keep their defaults, so an explicit zero
	// such as temperature: 0 survives.
	config := newDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, goerr.Wrap(err, "error parsing config file", goerr.V("path", path))
	}

	var present presentKeys
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, goerr.Wrap(err, "error parsing config file", goerr.V("path", path))
	}
	if present.Processor.ChunkOverlap == nil && config.Processor.ChunkOverlap >= config.Processor.ChunkSize {
		config.Processor.ChunkOverlap = config.Processor.ChunkSize / 5
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// presentKeys tells an absent key from one set to its zero value.
type presentKeys struct {
	Processor struct {
		ChunkOverlap *int `yaml:"chunk_overlap"`
	} `yaml:"processor"`
}

func getDefaultConfig() (*Config, error) {
	config := newDefaultConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// newDefaultConfig holds the defaults for settings where zero is a valid choice.
func newDefaultConfig() *Config {
	config := &Config{}
	config.LLM.Temperature = 0.1
	config.Processor.ChunkSize = 500
	config.Processor.ChunkOverlap = 100
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = DefaultLLMModel
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = DefaultLLMBaseURL
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 512
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Provider {
		case "openai":
			config.Embedding.Model = "text-embedding-3-small"
		default:
			config.Embedding.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 64
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "sqlite"
	}
	if config.Index.Path == "" {
		config.Index.Path = "vector_db"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "agri_chunks"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 768
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 3
	}

	if config.Loader.URLs == nil {
		config.Loader.URLs = []string{"https://mospi.gov.in/4-agricultural-statistics"}
	}
	if config.Loader.PDFFiles == nil {
		config.Loader.PDFFiles = []string{"Data/Farming Schemes.pdf", "Data/farmerbook.pdf"}
	}
	if config.Loader.Timeout == 0 {
		config.Loader.Timeout = 15 * time.Second
	}
	if config.Loader.RateLimit == 0 {
		config.Loader.RateLimit = 2.0
	}
	if len(config.Loader.AllowedExtensions) == 0 {
		config.Loader.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":5001"
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"*"}
	}

	if config.Waste.Addr == "" {
		config.Waste.Addr = ":5000"
	}
	if config.Waste.DatasetPath == "" {
		config.Waste.DatasetPath = "agricultural_waste_data.csv"
	}
	if config.Waste.NTrees == 0 {
		config.Waste.NTrees = 100
	}
	if config.Waste.TestSize == 0 {
		config.Waste.TestSize = 0.2
	}
	if config.Waste.Seed == 0 {
		config.Waste.Seed = 42
	}
	if config.Waste.MinSamplesLeaf == 0 {
		config.Waste.MinSamplesLeaf = 1
	}

	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("GROQ_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.Embedding.Provider != "openai" {
		config.Embedding.BaseURL = baseURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.Embedding.Provider == "openai" {
		config.Embedding.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if path := os.Getenv("AGRIGENIUS_VECTOR_DB"); path != "" {
		config.Index.Path = path
	}
}

// RequireAPIKey fails when the hosted LLM key is absent. Only the QA service needs it.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

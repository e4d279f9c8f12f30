package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"document-qa/internal/models"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderOpenAISDK = "openai-sdk"

	SplitterWindow    = "window"
	SplitterRecursive = "recursive"

	DriverPgdriver = "pgdriver"
	DriverPostgres = "postgres"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER"`
	BaseURL        string  `yaml:"base_url" env:"LLM_BASE_URL"`
	Key            string  `yaml:"api_key" env:"OPENAI_API_KEY"`
	ChatModel      string  `yaml:"chat_model" env:"LLM_CHAT_MODEL"`
	EmbeddingModel string  `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL"`
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS"`
	EmbedBatchSize int     `yaml:"embed_batch_size" env:"LLM_EMBED_BATCH_SIZE"`
}

type RAGConfig struct {
	ChunkSize     int     `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap  int     `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	Splitter      string  `yaml:"splitter" env:"CHUNK_SPLITTER"`
	TopK          int     `yaml:"top_k" env:"TOP_K"`
	MinSimilarity float32 `yaml:"min_similarity" env:"MIN_SIMILARITY"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr" env:"SERVER_ADDR"`
	MaxUploadMB         int64  `yaml:"max_upload_mb" env:"SERVER_MAX_UPLOAD_MB"`
	ReadTimeoutSecs     int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs    int    `yaml:"write_timeout_secs"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled" env:"DATABASE_ENABLED"`
	Driver  string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN     string `yaml:"dsn" env:"DATABASE_DSN"`
	Debug   bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	JSON  bool   `yaml:"json" env:"LOG_JSON"`
}

// LoadConfig reads the YAML file at path (a missing file yields defaults),
// applies .env and environment overrides, fills defaults and validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.ChatModel == "" {
		c.LLM.ChatModel = "gpt-4"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-ada-002"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.EmbedBatchSize == 0 {
		c.LLM.EmbedBatchSize = 512
	}

	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = models.DefaultChunkSize
		if c.RAG.ChunkOverlap == 0 {
			c.RAG.ChunkOverlap = models.DefaultChunkOverlap
		}
	}
	if c.RAG.Splitter == "" {
		c.RAG.Splitter = SplitterWindow
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = models.DefaultTopK
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 10
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 30
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = 120
	}
	if c.Server.ShutdownTimeoutSecs == 0 {
		c.Server.ShutdownTimeoutSecs = 10
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPgdriver
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderOpenAISDK:
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalid, c.LLM.Provider)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalid, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d", ErrInvalid, c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	switch c.RAG.Splitter {
	case SplitterWindow, SplitterRecursive:
	default:
		return fmt.Errorf("%w: unknown splitter %q", ErrInvalid, c.RAG.Splitter)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalid, c.RAG.TopK)
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case DriverPgdriver, DriverPostgres:
		default:
			return fmt.Errorf("%w: unknown database driver %q", ErrInvalid, c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required when the database is enabled", ErrInvalid)
		}
	}
	return nil
}

// RequiresCredential reports whether the configured provider needs an API key.
func (c *LLMConfig) RequiresCredential() bool {
	return c.Provider != ProviderOllama
}

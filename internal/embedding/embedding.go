package embedding

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
)

// NewEmbedder creates the embedding service for the configured provider
func NewEmbedder(llmConfig *config.LLMConfig, credential string) (embeddings.Embedder, error) {
	switch llmConfig.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(llmConfig)
	case config.ProviderOpenAISDK:
		return NewSDKEmbedder(llmConfig, credential), nil
	default:
		return NewOpenAIEmbedder(llmConfig, credential)
	}
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI embeddings API
func NewOpenAIEmbedder(llmConfig *config.LLMConfig, credential string) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.EmbeddingModel,
	}).Msg("Creating OpenAI embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(credential, "Bearer ")),
		openai.WithEmbeddingModel(llmConfig.EmbeddingModel),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm, batchOption(llmConfig))
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.EmbeddingModel,
	}).Msg("Creating Ollama embedder")

	opts := []ollama.Option{ollama.WithModel(llmConfig.EmbeddingModel)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm, batchOption(llmConfig))
}

func batchOption(llmConfig *config.LLMConfig) embeddings.Option {
	batch := llmConfig.EmbedBatchSize
	if batch <= 0 {
		batch = 512
	}
	return embeddings.WithBatchSize(batch)
}

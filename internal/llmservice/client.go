package llmservice

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-qa/internal/config"
)

var ErrEmptyResponse = errors.New("chat model returned no choices")

// ChatModel is the subset of llms.Model used to answer questions
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewChatModel creates the chat-completion service for the configured provider
func NewChatModel(llmConfig *config.LLMConfig, credential string) (ChatModel, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":   llmConfig.Provider,
		"base_url":   llmConfig.BaseURL,
		"chat_model": llmConfig.ChatModel,
	}).Msg("Creating chat model")

	switch llmConfig.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(llmConfig.ChatModel)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		return ollama.New(opts...)
	case config.ProviderOpenAISDK:
		return NewSDKChat(llmConfig, credential), nil
	default:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(credential, "Bearer ")),
			openai.WithModel(llmConfig.ChatModel),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		return openai.New(opts...)
	}
}

// GenerateContent calls the model with the sampling options from llmConfig
func GenerateContent(ctx context.Context, model ChatModel, llmConfig *config.LLMConfig, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	var opts []llms.CallOption
	if llmConfig != nil {
		opts = append(opts, llms.WithTemperature(llmConfig.Temperature))
		if llmConfig.MaxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(llmConfig.MaxTokens))
		}
	}
	return model.GenerateContent(ctx, messages, opts...)
}

// Complete sends a system instruction and one human turn and returns the
// text of the first choice.
func Complete(ctx context.Context, model ChatModel, llmConfig *config.LLMConfig, system, human string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, human),
	}
	res, err := GenerateContent(ctx, model, llmConfig, messages)
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}

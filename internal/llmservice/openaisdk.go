package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/config"
)

// SDKChat adapts the official OpenAI SDK to ChatModel
type SDKChat struct {
	client openai.Client
	model  string
}

func NewSDKChat(llmConfig *config.LLMConfig, credential string) *SDKChat {
	opts := []option.RequestOption{option.WithAPIKey(credential)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmConfig.BaseURL))
	}
	return &SDKChat{
		client: openai.NewClient(opts...),
		model:  llmConfig.ChatModel,
	}
}

func (c *SDKChat) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var callOpts llms.CallOptions
	for _, opt := range options {
		opt(&callOpts)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
	}
	if callOpts.Model != "" {
		params.Model = openai.ChatModel(callOpts.Model)
	}
	if callOpts.Temperature != 0 {
		params.Temperature = openai.Float(callOpts.Temperature)
	}
	if callOpts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(callOpts.MaxTokens))
	}

	for _, m := range messages {
		text := textOf(m)
		switch m.Role {
		case llms.ChatMessageTypeSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(text))
		case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
			params.Messages = append(params.Messages, openai.UserMessage(text))
		case llms.ChatMessageTypeAI:
			params.Messages = append(params.Messages, openai.AssistantMessage(text))
		default:
			return nil, fmt.Errorf("unsupported message role: %s", m.Role)
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	res := &llms.ContentResponse{}
	for _, choice := range completion.Choices {
		res.Choices = append(res.Choices, &llms.ContentChoice{
			Content:    choice.Message.Content,
			StopReason: choice.FinishReason,
		})
	}
	return res, nil
}

func textOf(m llms.MessageContent) string {
	var b strings.Builder
	for _, part := range m.Parts {
		if t, ok := part.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

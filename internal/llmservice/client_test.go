package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"document-qa/internal/config"
)

type recordingModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	res      *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	return m.res, m.err
}

func TestComplete_SendsSystemAndHumanTurns(t *testing.T) {
	m := &recordingModel{res: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Paris.  "}}}}
	cfg := config.Default()
	cfg.LLM.Temperature = 0.2
	cfg.LLM.MaxTokens = 64

	out, err := Complete(context.Background(), m, &cfg.LLM, "system text", "what is the capital?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Paris." {
		t.Fatalf("expected trimmed answer, got %q", out)
	}
	if len(m.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(m.messages))
	}
	if m.messages[0].Role != llms.ChatMessageTypeSystem || m.messages[1].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("unexpected roles: %s, %s", m.messages[0].Role, m.messages[1].Role)
	}
	if textOf(m.messages[1]) != "what is the capital?" {
		t.Fatalf("unexpected human text: %q", textOf(m.messages[1]))
	}
	if m.opts.Temperature != 0.2 || m.opts.MaxTokens != 64 {
		t.Fatalf("expected sampling options to be applied, got %+v", m.opts)
	}
}

func TestComplete_EmptyAndFailedResponses(t *testing.T) {
	_, err := Complete(context.Background(), &recordingModel{res: &llms.ContentResponse{}}, nil, "s", "h")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}

	boom := errors.New("rate limited")
	_, err = Complete(context.Background(), &recordingModel{err: boom}, nil, "s", "h")
	if !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

// fakeChatAPI answers /chat/completions echoing the last user message.
func fakeChatAPI(t *testing.T, gotAuth *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		*gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "answer from " + req.Model},
			}},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
}

func TestChatModels_AgainstCompletionsAPI(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderOpenAISDK} {
		t.Run(provider, func(t *testing.T) {
			var auth string
			srv := fakeChatAPI(t, &auth)
			defer srv.Close()

			cfg := config.Default()
			cfg.LLM.Provider = provider
			cfg.LLM.BaseURL = srv.URL + "/v1/"
			cfg.LLM.ChatModel = "test-chat"

			model, err := NewChatModel(&cfg.LLM, "chat-key")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			out, err := Complete(context.Background(), model, &cfg.LLM, "sys", "question")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != "answer from test-chat" {
				t.Fatalf("unexpected answer: %q", out)
			}
			if auth != "Bearer chat-key" {
				t.Fatalf("expected bearer credential, got %q", auth)
			}
		})
	}
}

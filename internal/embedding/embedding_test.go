package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"document-qa/internal/config"
)

// fakeEmbeddingsAPI answers /embeddings with [len(input), index] vectors.
type fakeEmbeddingsAPI struct {
	mu      sync.Mutex
	calls   int
	authHdr string
	model   string
}

func (f *fakeEmbeddingsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/embeddings") {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls++
	f.authHdr = r.Header.Get("Authorization")
	f.model = req.Model
	f.mu.Unlock()

	data := make([]map[string]any, len(req.Input))
	for i, text := range req.Input {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": []float64{float64(len(text)), float64(i)},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func testConfig(provider, baseURL string) *config.LLMConfig {
	cfg := config.Default()
	cfg.LLM.Provider = provider
	cfg.LLM.BaseURL = baseURL
	cfg.LLM.EmbeddingModel = "test-embedding"
	cfg.LLM.EmbedBatchSize = 2
	return &cfg.LLM
}

func TestNewEmbedder_SelectsProvider(t *testing.T) {
	e, err := NewEmbedder(testConfig(config.ProviderOpenAISDK, ""), "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.(*SDKEmbedder); !ok {
		t.Fatalf("expected *SDKEmbedder, got %T", e)
	}

	if _, err := NewEmbedder(testConfig(config.ProviderOpenAI, ""), "key"); err != nil {
		t.Fatalf("unexpected error for openai provider: %v", err)
	}
	if _, err := NewEmbedder(testConfig(config.ProviderOllama, "http://localhost:11434"), ""); err != nil {
		t.Fatalf("unexpected error for ollama provider: %v", err)
	}
}

func TestOpenAIEmbedder_EmbedsThroughAPI(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(testConfig(config.ProviderOpenAI, srv.URL+"/v1"), "test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "bbb", "cc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if vectors[1][0] != 3 {
		t.Fatalf("expected second vector to encode length 3, got %v", vectors[1])
	}
	if api.authHdr != "Bearer test-key" {
		t.Fatalf("expected bearer credential, got %q", api.authHdr)
	}
	if api.model != "test-embedding" {
		t.Fatalf("expected embedding model to be sent, got %q", api.model)
	}
}

func TestSDKEmbedder_BatchesAndOrders(t *testing.T) {
	api := &fakeEmbeddingsAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	e := NewSDKEmbedder(testConfig(config.ProviderOpenAISDK, srv.URL+"/v1/"), "sdk-key")

	vectors, err := e.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if int(v[0]) != i+1 {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	// batch size 2 over 5 texts
	if api.calls != 3 {
		t.Fatalf("expected 3 batched calls, got %d", api.calls)
	}
	if api.authHdr != "Bearer sdk-key" {
		t.Fatalf("expected bearer credential, got %q", api.authHdr)
	}

	q, err := e.EmbedQuery(context.Background(), "four")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q[0] != 4 {
		t.Fatalf("expected query vector to encode length 4, got %v", q)
	}
}

func TestSDKEmbedder_PropagatesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewSDKEmbedder(testConfig(config.ProviderOpenAISDK, srv.URL+"/v1/"), "bad")
	if _, err := e.EmbedDocuments(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected an error for an unauthorized response")
	}
}

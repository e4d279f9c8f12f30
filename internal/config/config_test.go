package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_FromYAML(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
llm:
  provider: ollama
  base_url: http://localhost:11434
  chat_model: llama3
  embedding_model: nomic-embed-text
  temperature: 0.2
rag:
  chunk_size: 500
  chunk_overlap: 50
  splitter: recursive
  top_k: 3
server:
  addr: ":9090"
log:
  level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != ProviderOllama || cfg.LLM.ChatModel != "llama3" || cfg.LLM.EmbeddingModel != "nomic-embed-text" {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", cfg.LLM.Temperature)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 50 || cfg.RAG.Splitter != SplitterRecursive || cfg.RAG.TopK != 3 {
		t.Fatalf("unexpected rag config: %+v", cfg.RAG)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.MaxUploadMB != 10 {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.LLM.RequiresCredential() {
		t.Fatalf("expected ollama to need no credential")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != ProviderOpenAI || cfg.LLM.ChatModel != "gpt-4" || cfg.LLM.EmbeddingModel != "text-embedding-ada-002" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Fatalf("expected default temperature 0.7, got %v", cfg.LLM.Temperature)
	}
	if cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 200 || cfg.RAG.TopK != 4 || cfg.RAG.Splitter != SplitterWindow {
		t.Fatalf("unexpected rag defaults: %+v", cfg.RAG)
	}
	if !cfg.LLM.RequiresCredential() {
		t.Fatalf("expected openai to need a credential")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("TOP_K", "6")
	t.Setenv("LOG_LEVEL", "warn")
	path := writeConfig(t, "rag:\n  top_k: 2\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Key != "sk-from-env" {
		t.Fatalf("expected the key from the environment, got %q", cfg.LLM.Key)
	}
	if cfg.RAG.TopK != 6 {
		t.Fatalf("expected TOP_K to override the file, got %d", cfg.RAG.TopK)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected LOG_LEVEL to apply, got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cases := map[string]string{
		"overlap equals size":  "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n",
		"negative overlap":     "rag:\n  chunk_overlap: -1\n",
		"unknown provider":     "llm:\n  provider: carrier-pigeon\n",
		"unknown splitter":     "rag:\n  splitter: sentences\n",
		"database without dsn": "database:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	if _, err := LoadConfig(writeConfig(t, "rag: [not, a, map")); err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

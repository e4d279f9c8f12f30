package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
)

var ErrEmptyQuestion = errors.New("question is empty")

// Pipeline answers questions about one document from its index.
// Embedder must be the same service for chunks and questions.
type Pipeline struct {
	Embedder      embeddings.Embedder
	Chat          llmservice.ChatModel
	LLM           *config.LLMConfig
	TopK          int
	MinSimilarity float32
}

// NewPipeline wires the services with the retrieval settings from cfg
func NewPipeline(embedder embeddings.Embedder, chat llmservice.ChatModel, cfg *config.Config) *Pipeline {
	return &Pipeline{
		Embedder:      embedder,
		Chat:          chat,
		LLM:           &cfg.LLM,
		TopK:          cfg.RAG.TopK,
		MinSimilarity: cfg.RAG.MinSimilarity,
	}
}

// BuildIndex embeds every chunk and returns a fresh index. Any embedding
// failure aborts the build.
func (p *Pipeline) BuildIndex(ctx context.Context, source string, chunks []models.Chunk) (*chromemdb.Index, error) {
	index, err := chromemdb.NewIndex(source, chromem.EmbeddingFunc(p.Embedder.EmbedQuery))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return index, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	start := time.Now()
	vectors, err := p.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := index.Add(ctx, chunks, vectors); err != nil {
		return nil, err
	}

	log.Info().
		Str("source", source).
		Int("chunks", len(chunks)).
		Dur("took", time.Since(start)).
		Msg("Built index")
	return index, nil
}

// Answer retrieves context for the question and asks the chat model. When no
// chunk qualifies as context the chat model is not called and the answer is
// marked NoContext.
func (p *Pipeline) Answer(ctx context.Context, index *chromemdb.Index, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	answer := &models.Answer{Question: question}

	matches, err := index.Search(ctx, question, p.topK(), p.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	if len(matches) == 0 {
		answer.NoContext = true
		answer.Text = models.NoContextMessage
		answer.Elapsed = time.Since(start)
		log.Info().Str("question", question).Msg("No relevant context")
		return answer, nil
	}

	text, err := llmservice.Complete(ctx, p.Chat, p.LLM, BuildSystemPrompt(matches), question)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if text == "" {
		text = models.NoAnswerMessage
	}

	answer.Text = text
	answer.Context = matches
	answer.Elapsed = time.Since(start)

	log.Info().
		Int("context_chunks", len(matches)).
		Float32("top_similarity", matches[0].Similarity).
		Dur("elapsed", answer.Elapsed).
		Msg("Answered question")
	return answer, nil
}

// BuildSystemPrompt stuffs the retrieved chunks into the system instruction
func BuildSystemPrompt(matches []models.ScoredChunk) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return fmt.Sprintf(models.SystemPromptTemplate, strings.Join(parts, models.ContextSeparator))
}

func (p *Pipeline) topK() int {
	if p.TopK <= 0 {
		return models.DefaultTopK
	}
	return p.TopK
}

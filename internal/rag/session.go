package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"document-qa/internal/chromemdb"
	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/history"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"
)

var (
	ErrMissingCredential = errors.New("API key is required")
	ErrNoDocument        = errors.New("no document has been uploaded")
)

// ServiceFactory builds the pipeline services for a credential
type ServiceFactory func(credential string) (*Pipeline, error)

// DefaultServices returns a factory that creates the configured embedding and
// chat services.
func DefaultServices(cfg *config.Config) ServiceFactory {
	return func(credential string) (*Pipeline, error) {
		embedder, err := embedding.NewEmbedder(&cfg.LLM, credential)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		chat, err := llmservice.NewChatModel(&cfg.LLM, credential)
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}
		return NewPipeline(embedder, chat, cfg), nil
	}
}

// IngestResult describes an indexed document
type IngestResult struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
}

// Session holds the credential and the current document index of one user.
// All methods are safe for concurrent use; actions are serialised.
type Session struct {
	ID string

	mu         sync.Mutex
	credential string
	pipeline   *Pipeline
	index      *chromemdb.Index

	services      ServiceFactory
	splitter      chunker.Splitter
	requireAPIKey bool
	recorder      history.Recorder
}

type SessionOption func(*Session)

// WithRecorder logs every answered question to r
func WithRecorder(r history.Recorder) SessionOption {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithServices overrides how the pipeline services are created
func WithServices(f ServiceFactory) SessionOption {
	return func(s *Session) {
		s.services = f
	}
}

// NewSession creates a session with no document. An empty credential is
// accepted but every action then fails with ErrMissingCredential, unless the
// provider needs none.
func NewSession(cfg *config.Config, credential string, opts ...SessionOption) (*Session, error) {
	splitter, err := chunker.New(cfg.RAG.Splitter, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:            id,
		credential:    strings.TrimSpace(credential),
		services:      DefaultServices(cfg),
		splitter:      splitter,
		requireAPIKey: cfg.LLM.RequiresCredential(),
		recorder:      history.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetCredential replaces the API key
func (s *Session) SetCredential(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential = strings.TrimSpace(credential)
	if credential == s.credential {
		return
	}
	s.credential = credential
	// the index is kept; services are recreated on next use
	s.pipeline = nil
}

func (s *Session) HasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasCredential()
}

func (s *Session) hasCredential() bool {
	return !s.requireAPIKey || s.credential != ""
}

// Document returns the name of the indexed document, if any
func (s *Session) Document() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return "", false
	}
	return s.index.Source(), true
}

// Upload parses, chunks and indexes a PDF, replacing the current document.
// On failure the previous index stays in place.
func (s *Session) Upload(ctx context.Context, name string, data []byte) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.servicesLocked()
	if err != nil {
		return nil, err
	}

	pages, err := parser.ParsePDF(data)
	if err != nil {
		return nil, err
	}
	chunks, err := s.splitter.Split(pages)
	if err != nil {
		return nil, err
	}

	index, err := p.BuildIndex(ctx, name, chunks)
	if err != nil {
		return nil, err
	}
	s.index = index

	log.Info().
		Str("session", s.ID).
		Str("document", name).
		Int("pages", len(pages)).
		Int("chunks", len(chunks)).
		Msg("Document indexed")
	return &IngestResult{Filename: name, Pages: len(pages), Chunks: len(chunks)}, nil
}

// Ask answers a question about the current document
func (s *Session) Ask(ctx context.Context, question string) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.servicesLocked()
	if err != nil {
		return nil, err
	}
	if s.index == nil {
		return nil, ErrNoDocument
	}

	answer, err := p.Answer(ctx, s.index, question)
	if err != nil {
		return nil, err
	}

	top, _ := answer.TopContext()
	entry := &history.Entry{
		SessionID:  s.ID,
		Document:   s.index.Source(),
		Question:   answer.Question,
		Answer:     answer.Text,
		TopContext: top,
		NoContext:  answer.NoContext,
		ElapsedMS:  answer.Elapsed.Milliseconds(),
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Failed to record question")
	}
	return answer, nil
}

func (s *Session) servicesLocked() (*Pipeline, error) {
	if !s.hasCredential() {
		return nil, ErrMissingCredential
	}
	if s.pipeline != nil {
		return s.pipeline, nil
	}
	p, err := s.services(s.credential)
	if err != nil {
		return nil, err
	}
	s.pipeline = p
	if s.index != nil {
		// questions about the kept document go through the new embedder
		s.index.SetEmbeddingFunc(p.Embedder.EmbedQuery)
	}
	return p, nil
}

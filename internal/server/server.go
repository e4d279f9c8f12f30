package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/history"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

var errUnknownSession = errors.New("unknown session")

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type askRequest struct {
	Question string `json:"question"`
}

type contextChunk struct {
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

type askResponse struct {
	Answer         string         `json:"answer"`
	AnswerHTML     string         `json:"answer_html"`
	TopContext     string         `json:"top_context"`
	Context        []contextChunk `json:"context"`
	NoContext      bool           `json:"no_context"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes sessions over HTTP. Every session has its own credential
// and document index.
type Server struct {
	cfg      *config.Config
	services func(cfg *config.Config) rag.ServiceFactory
	recorder history.Recorder

	mu       sync.RWMutex
	sessions map[string]*rag.Session
}

type Option func(*Server)

// WithServices replaces the embedding and chat services of new sessions
func WithServices(f func(cfg *config.Config) rag.ServiceFactory) Option {
	return func(s *Server) {
		s.services = f
	}
}

func WithRecorder(r history.Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		services: rag.DefaultServices,
		recorder: history.Nop{},
		sessions: make(map[string]*rag.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("PUT /sessions/{id}/credential", s.credentialHandler)
	mux.HandleFunc("POST /sessions/{id}/document", s.uploadHandler)
	mux.HandleFunc("POST /sessions/{id}/ask", s.askHandler)
	mux.HandleFunc("GET /sessions/{id}/history", s.historyHandler)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting document Q&A server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session, err := rag.NewSession(s.cfg, req.APIKey,
		rag.WithServices(s.services(s.cfg)),
		rag.WithRecorder(s.recorder))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Info().Str("session", session.ID).Bool("has_credential", session.HasCredential()).Msg("Session created")
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: session.ID})
}

// deleteSessionHandler drops a session together with its credential and index
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeFailure(w, errUnknownSession)
		return
	}
	log.Info().Str("session", id).Msg("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) credentialHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	session.SetCredential(req.APIKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !session.HasCredential() {
		writeFailure(w, rag.ErrMissingCredential)
		return
	}

	maxBytes := s.cfg.Server.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d MB", s.cfg.Server.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	res, err := session.Upload(r.Context(), header.Filename, data)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	answer, err := session.Ask(r.Context(), req.Question)
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := askResponse{
		Answer:         answer.Text,
		NoContext:      answer.NoContext,
		ElapsedSeconds: answer.Elapsed.Seconds(),
		Context:        make([]contextChunk, 0, len(answer.Context)),
	}
	resp.TopContext, _ = answer.TopContext()
	for _, c := range answer.Context {
		resp.Context = append(resp.Context, contextChunk{Page: c.PageNumber, Text: c.Content, Score: c.Similarity})
	}
	if html, err := helper.RenderMarkdown(answer.Text); err != nil {
		log.Warn().Err(err).Msg("Failed to render answer")
	} else {
		resp.AnswerHTML = html
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyReader interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]history.Entry, error)
}

// historyHandler lists the latest questions of a session when a history
// store is configured.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	reader, ok := s.recorder.(historyReader)
	if !ok {
		writeError(w, http.StatusNotImplemented, "question history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 100)
	}

	entries, err := reader.Recent(r.Context(), session.ID, limit)
	if err != nil {
		log.Error().Err(err).Str("session", session.ID).Msg("Failed to read history")
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) session(r *http.Request) (*rag.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[r.PathValue("id")]
	if !ok {
		return nil, errUnknownSession
	}
	return session, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrMissingCredential):
		return http.StatusUnauthorized
	case errors.Is(err, rag.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, parser.ErrEmptyDocument),
		errors.Is(err, parser.ErrNotPDF),
		errors.Is(err, parser.ErrNoText),
		errors.Is(err, parser.ErrMalformed),
		errors.Is(err, chunker.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

// writeFailure maps session errors to status codes. Anything not recognised
// is a failure of an external service.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Error encoding response")
	}
}

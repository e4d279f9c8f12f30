// Package ragtest provides in-process embedding and chat services for tests.
package ragtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

const dims = 64

// Embedder maps text to a bag-of-words vector. The first dimension is a
// constant bias so no vector is ever zero.
type Embedder struct {
	Err error

	mu           sync.Mutex
	DocCalls     int
	QueryCalls   int
	EmbeddedDocs int
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.DocCalls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = Vector(text)
	}

	e.mu.Lock()
	e.EmbeddedDocs += len(texts)
	e.mu.Unlock()
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.QueryCalls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return Vector(text), nil
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DocCalls + e.QueryCalls
}

// Vector hashes each lowercased word into one of a fixed number of buckets
func Vector(text string) []float32 {
	v := make([]float32, dims)
	v[0] = 1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[1+int(h.Sum32()%(dims-1))]++
	}
	return v
}

// Chat returns Reply for every request and records the messages it received
type Chat struct {
	Reply string
	Delay time.Duration
	Err   error

	mu       sync.Mutex
	calls    int
	messages []llms.MessageContent
}

func (c *Chat) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	c.mu.Lock()
	c.calls++
	c.messages = messages
	c.mu.Unlock()

	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: c.Reply}},
	}, nil
}

func (c *Chat) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastPrompt returns the system and human text of the latest request
func (c *Chat) LastPrompt() (system, human string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		var text string
		for _, part := range m.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text += tc.Text
			}
		}
		switch m.Role {
		case llms.ChatMessageTypeSystem:
			system = text
		case llms.ChatMessageTypeHuman:
			human = text
		}
	}
	return system, human
}

// ErrUpstream simulates an unreachable external service
var ErrUpstream = errors.New("upstream unavailable")

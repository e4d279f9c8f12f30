package models

import "time"

// Page is the extracted text of one PDF page
type Page struct {
	Number int
	Text   string
}

// Chunk is a window of page text used as the unit of retrieval
type Chunk struct {
	ID         string
	Content    string
	PageNumber int
	ChunkID    int
	// Start is the rune offset of Content within its page
	Start int
}

// ScoredChunk is a chunk returned by similarity search
type ScoredChunk struct {
	Chunk
	Similarity float32
}

// Answer is the result of one question against the current index.
// Context is empty when nothing relevant was retrieved; NoContext is then set
// and Text carries NoContextMessage.
type Answer struct {
	Question  string
	Text      string
	Context   []ScoredChunk
	NoContext bool
	Elapsed   time.Duration
}

// TopContext returns the most relevant chunk text, if any.
func (a *Answer) TopContext() (string, bool) {
	if a == nil || len(a.Context) == 0 {
		return "", false
	}
	return a.Context[0].Content, true
}

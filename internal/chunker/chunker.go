package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"document-qa/internal/models"
)

const (
	MethodWindow    = "window"
	MethodRecursive = "recursive"
)

var ErrInvalidWindow = errors.New("invalid chunk window")

// Splitter turns extracted pages into ordered chunks
type Splitter interface {
	Split(pages []models.Page) ([]models.Chunk, error)
}

// New returns the splitter registered under method
func New(method string, size, overlap int) (Splitter, error) {
	switch strings.ToLower(method) {
	case "", MethodWindow:
		return NewWindow(size, overlap)
	case MethodRecursive:
		return NewRecursive(size, overlap)
	default:
		return nil, fmt.Errorf("unknown chunking method: %s", method)
	}
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidWindow, size, overlap)
	}
	return nil
}

// Window slides a fixed-size rune window over each page, advancing by
// size-overlap. The last window of a page may be shorter than size.
type Window struct {
	size    int
	overlap int
}

func NewWindow(size, overlap int) (*Window, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Window{size: size, overlap: overlap}, nil
}

func (w *Window) Split(pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	step := w.size - w.overlap

	for _, page := range pages {
		runes := []rune(page.Text)
		for start := 0; start < len(runes); start += step {
			end := min(start+w.size, len(runes))
			content := string(runes[start:end])
			if strings.TrimSpace(content) != "" {
				chunks = append(chunks, newChunk(content, page.Number, len(chunks), start))
			}
			if end == len(runes) {
				break
			}
		}
	}
	return chunks, nil
}

// Recursive splits each page on paragraph, line and word boundaries before
// falling back to characters.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursive(size, overlap int) (*Recursive, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

func (r *Recursive) Split(pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		parts, err := r.splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", page.Number, err)
		}
		// parts are trimmed by the splitter, so offsets are located by search
		cursor := 0
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			start := -1
			if idx := strings.Index(page.Text[cursor:], part); idx >= 0 {
				start = len([]rune(page.Text[:cursor+idx]))
				// step past the match start so a repeated part is found at its next occurrence
				_, size := utf8.DecodeRuneInString(page.Text[cursor+idx:])
				cursor += idx + size
			}
			chunks = append(chunks, newChunk(part, page.Number, len(chunks), start))
		}
	}
	return chunks, nil
}

func newChunk(content string, pageNumber, index, start int) models.Chunk {
	return models.Chunk{
		ID:         fmt.Sprintf("p%d-c%d", pageNumber, index+1),
		Content:    content,
		PageNumber: pageNumber,
		ChunkID:    index + 1,
		Start:      start,
	}
}

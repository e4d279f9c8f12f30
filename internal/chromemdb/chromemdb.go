package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

const collectionName = "document"

// Index is an ephemeral in-memory vector index over the chunks of one
// document. A new Index is built for every upload.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	source     string
}

// NewIndex creates an empty index. embeddingFunc embeds query text and must
// be the same service that produced the chunk vectors.
func NewIndex(source string, embeddingFunc chromem.EmbeddingFunc) (*Index, error) {
	if embeddingFunc == nil {
		return nil, errors.New("embedding function is required")
	}
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, map[string]string{"source": source}, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &Index{db: db, collection: c, embed: embeddingFunc, source: source}, nil
}

// Source is the name of the document the index was built from
func (idx *Index) Source() string {
	return idx.source
}

// Count returns the number of indexed chunks
func (idx *Index) Count() int {
	return idx.collection.Count()
}

// Add stores chunks with their precomputed vectors
func (idx *Index) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Content,
			Metadata:  chunkMetadata(ch),
			Embedding: vectors[i],
		}
	}

	if err := idx.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("chunks", len(docs)).Str("source", idx.source).Msg("Indexed chunks")
	return nil
}

// SetEmbeddingFunc replaces the function used to embed queries. It must
// produce vectors in the same space as the indexed chunks.
func (idx *Index) SetEmbeddingFunc(embeddingFunc chromem.EmbeddingFunc) {
	if embeddingFunc != nil {
		idx.embed = embeddingFunc
	}
}

// Search embeds the query and returns up to k chunks ordered by cosine
// similarity. A positive minSimilarity drops results below it; zero or less
// keeps every result.
func (idx *Index) Search(ctx context.Context, query string, k int, minSimilarity float32) ([]models.ScoredChunk, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	k = min(k, idx.Count())
	if k <= 0 {
		return nil, nil
	}
	vector, err := idx.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := idx.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: normalize(vector),
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	scored := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		if minSimilarity > 0 && r.Similarity < minSimilarity {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Chunk:      chunkFromResult(r),
			Similarity: r.Similarity,
		})
	}
	return scored, nil
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func chunkMetadata(ch models.Chunk) map[string]string {
	return map[string]string{
		"page":     strconv.Itoa(ch.PageNumber),
		"chunk_id": strconv.Itoa(ch.ChunkID),
		"start":    strconv.Itoa(ch.Start),
	}
}

func chunkFromResult(r chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(r.Metadata["page"])
	chunkID, _ := strconv.Atoi(r.Metadata["chunk_id"])
	start, _ := strconv.Atoi(r.Metadata["start"])
	return models.Chunk{
		ID:         r.ID,
		Content:    r.Content,
		PageNumber: page,
		ChunkID:    chunkID,
		Start:      start,
	}
}

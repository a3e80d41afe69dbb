package retrieval

import (
	"context"
	"fmt"

	"github.com/abd2220/retail-copilot/internal/storage"
)

type QueryEmbedder interface {
	QueryEmbedding(ctx context.Context, query string) ([]float32, error)
}

type SimilaritySearcher interface {
	QuerySimilar(ctx context.Context, queryEmb []float32, topK int) ([]storage.Document, error)
}

// VectorRetriever embeds the query and runs a nearest-neighbour search over
// chunks indexed in pgvector. Hits are ranked by distance, so Score is the
// reciprocal rank.
type VectorRetriever struct {
	embedder QueryEmbedder
	store    SimilaritySearcher
}

func NewVectorRetriever(embedder QueryEmbedder, store SimilaritySearcher) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, store: store}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	qemb, err := r.embedder.QueryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := r.store.QuerySimilar(ctx, qemb, topK)
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, len(docs))
	for i, d := range docs {
		out[i] = Chunk{ID: d.ChunkID, Text: d.Content, Source: d.Filename, Score: 1 / float64(i+1)}
	}
	return out, nil
}

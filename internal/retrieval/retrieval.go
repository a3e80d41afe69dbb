// Package retrieval ranks document chunks for a keyword query.
package retrieval

import "context"

// Chunk is a ranked retrieval hit. ID is the citable source id.
type Chunk struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Retriever returns at most topK chunks for query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error)
}

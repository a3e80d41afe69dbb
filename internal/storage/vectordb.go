package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

type Document struct {
	ID       int
	ChunkID  string
	Filename string
	Source   string
	Content  string
}

// InsertEmbedding adds a chunk with its embedding. Re-indexing a chunk id
// replaces the previous row.
func (s *VectorStore) InsertEmbedding(ctx context.Context, doc Document, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (chunk_id, filename, source, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chunk_id) DO UPDATE
		SET filename = EXCLUDED.filename, source = EXCLUDED.source,
		    content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
		doc.ChunkID, doc.Filename, doc.Source, doc.Content, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("insert chunk %s: %w", doc.ChunkID, err)
	}
	return nil
}

// QuerySimilar returns top-k most similar documents
func (s *VectorStore) QuerySimilar(ctx context.Context, queryEmb []float32, topK int) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, chunk_id, filename, source, content FROM documents ORDER BY embedding <-> $1 LIMIT $2",
		pgvector.NewVector(queryEmb), topK)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.ChunkID, &doc.Filename, &doc.Source, &doc.Content); err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	return results, rows.Err()
}

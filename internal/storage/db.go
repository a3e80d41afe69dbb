package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// VectorStore holds embedded document chunks in Postgres with pgvector.
type VectorStore struct {
	pool *pgxpool.Pool
}

func OpenVectorStore(ctx context.Context, url string) (*VectorStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	return &VectorStore{pool: pool}, nil
}

// EnsureSchema creates the vector extension and documents table.
func (s *VectorStore) EnsureSchema(ctx context.Context, dim int) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id SERIAL PRIMARY KEY,
			chunk_id TEXT UNIQUE NOT NULL,
			filename TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, dim),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

func (s *VectorStore) Close() { s.pool.Close() }

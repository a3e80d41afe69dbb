package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abd2220/retail-copilot/internal/processing"
	"github.com/abd2220/retail-copilot/internal/storage"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the document corpus into the pgvector store",
	Long: `Extracts text from the docs directory (markdown, text, PDF, images through
OCR) and, when enabled, the marketing calendar; chunks it, embeds every chunk
with Ollama and upserts it into Postgres for the pgvector retriever.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	vs, err := storage.OpenVectorStore(ctx, cfg.Vector.DatabaseURL)
	if err != nil {
		return err
	}
	defer vs.Close()
	if err := vs.EnsureSchema(ctx, processing.EmbeddingDim); err != nil {
		return err
	}

	docs, err := loadDocuments(ctx, cfg, logger)
	if err != nil {
		return err
	}
	embedder := processing.NewEmbedder(cfg.LLM.Endpoint, cfg.LLM.EmbedModel, cfg.LLM.Timeout)

	var indexed int
	for _, d := range docs {
		chunks := processing.ChunkDocument(d.Name, d.Text)
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		embs, err := embedder.EmbedChunks(ctx, texts)
		if err != nil {
			logger.Warn("embed error", "document", d.Name, "error", err)
			continue
		}
		for i, c := range chunks {
			doc := storage.Document{ChunkID: c.ID, Filename: d.Name, Source: d.Source, Content: c.Text}
			if err := vs.InsertEmbedding(ctx, doc, embs[i]); err != nil {
				logger.Warn("db insert error", "chunk", c.ID, "error", err)
				continue
			}
			indexed++
		}
		logger.Info("indexed", "document", d.Name, "chunks", len(chunks))
	}
	fmt.Printf("Indexing complete: %d chunks from %d documents.\n", indexed, len(docs))
	return nil
}

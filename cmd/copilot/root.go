package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abd2220/retail-copilot/internal/config"
	"github.com/abd2220/retail-copilot/internal/graph"
	"github.com/abd2220/retail-copilot/internal/ingestion"
	"github.com/abd2220/retail-copilot/internal/llm"
	"github.com/abd2220/retail-copilot/internal/logging"
	"github.com/abd2220/retail-copilot/internal/processing"
	"github.com/abd2220/retail-copilot/internal/retrieval"
	"github.com/abd2220/retail-copilot/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Retail analytics copilot",
	Long: `copilot answers retail-analytics questions over the Northwind store and a
small document corpus. Each question is routed to document retrieval, SQL, or
both, and answered with a typed value, an explanation and citations.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(cfg.Log.Format, cfg.Log.Level, os.Stderr), nil
}

// app holds the collaborators a command needs.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *storage.SQLStore
	agent   *graph.Agent
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	store, err := storage.Open(ctx, storage.Dialect(cfg.Store.Driver), cfg.Store.DSN, cfg.Store.Tables, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })

	retriever, err := a.retriever(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	emptyRows, err := graph.ParseEmptyRowsPolicy(cfg.Agent.RequireRows, cfg.Agent.NullRowsAreEmpty)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := graph.Options{
		MaxRetries:   cfg.Agent.MaxRetries,
		TopK:         cfg.Retrieval.TopK,
		ContextLimit: cfg.Agent.ContextLimit,
		Dialect:      dialectName(store.Dialect()),
		EmptyRows:    emptyRows,
	}
	a.agent = graph.New(a.completer(), retriever, store, opts, logger)
	return a, nil
}

func (a *app) completer() llm.Completer {
	ollama := llm.NewOllama(a.cfg.LLM.Endpoint, a.cfg.LLM.Model, a.cfg.LLM.Timeout)
	if !a.cfg.Cache.Enabled {
		return ollama
	}
	client := llm.NewRedisClient(a.cfg.Cache.Addr, a.cfg.Cache.Password, a.cfg.Cache.DB, a.logger)
	a.closers = append(a.closers, func() { client.Close() })
	return llm.NewCachedCompleter(ollama, client, a.cfg.Cache.TTL, ollama.Model(), a.logger)
}

// retriever builds the configured document retriever. A bm25 corpus with no
// documents yields nil, and rag questions then end in a diagnostic answer.
func (a *app) retriever(ctx context.Context) (retrieval.Retriever, error) {
	if a.cfg.Retrieval.Backend == "pgvector" {
		vs, err := storage.OpenVectorStore(ctx, a.cfg.Vector.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, vs.Close)
		embedder := processing.NewEmbedder(a.cfg.LLM.Endpoint, a.cfg.LLM.EmbedModel, a.cfg.LLM.Timeout)
		return retrieval.NewVectorRetriever(embedder, vs), nil
	}

	docs, err := loadDocuments(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	index := retrieval.NewBM25Index(ingestion.Chunks(docs))
	a.logger.Info("document index built", "documents", len(docs), "chunks", index.Len())
	if index.Len() == 0 {
		return nil, nil
	}
	return index, nil
}

// loadDocuments reads the docs directory and, when enabled, the marketing
// calendar.
func loadDocuments(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]ingestion.Document, error) {
	var docs []ingestion.Document
	if _, err := os.Stat(cfg.Retrieval.DocsDir); err == nil {
		x := ingestion.Extractor{OCR: cfg.Retrieval.OCR, Languages: cfg.Retrieval.OCRLanguages}
		local, err := ingestion.LoadDir(cfg.Retrieval.DocsDir, x, logger)
		if err != nil {
			return nil, fmt.Errorf("load docs: %w", err)
		}
		docs = append(docs, local...)
	} else {
		logger.Warn("docs directory not found", "dir", cfg.Retrieval.DocsDir)
	}

	if cfg.Calendar.Enabled {
		src, err := ingestion.NewCalendarSource(ctx, ingestion.CalendarOptions{
			CalendarID:   cfg.Calendar.CalendarID,
			ClientID:     cfg.Calendar.ClientID,
			ClientSecret: cfg.Calendar.ClientSecret,
			AccessToken:  cfg.Calendar.AccessToken,
			RefreshToken: cfg.Calendar.RefreshToken,
			From:         cfg.Calendar.From,
			To:           cfg.Calendar.To,
		})
		if err != nil {
			return nil, err
		}
		doc, err := src.Document(ctx)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func dialectName(d storage.Dialect) string {
	if d == storage.Postgres {
		return "PostgreSQL"
	}
	return "SQLite"
}

func parseQuestionArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

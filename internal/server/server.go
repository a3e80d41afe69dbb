// Package server exposes the copilot over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abd2220/retail-copilot/internal/graph"
	"github.com/abd2220/retail-copilot/internal/metrics"
	"github.com/abd2220/retail-copilot/internal/storage"
)

// Asker answers one question. *graph.Agent satisfies it.
type Asker interface {
	Run(ctx context.Context, q graph.Question) *graph.RunState
}

// SchemaSource lists the structured store's tables.
type SchemaSource interface {
	Schema(ctx context.Context) ([]storage.Table, error)
}

type Server struct {
	agent  Asker
	schema SchemaSource
	logger *slog.Logger
}

func New(agent Asker, schema SchemaSource, logger *slog.Logger) *Server {
	return &Server{agent: agent, schema: schema, logger: logger}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ask", s.handleAsk).Methods("POST")
	router.HandleFunc("/schema", s.handleSchema).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())
	return router
}

// Serve listens on port until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, port string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("copilot API starting", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server exited")
	return nil
}

type askResponse struct {
	*graph.FinalAnswer
	State *graph.RunState `json:"state,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe("/ask", start)

	var q graph.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		fail(w, "/ask", "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(q.Question) == "" {
		fail(w, "/ask", "Question is required", http.StatusBadRequest)
		return
	}

	state := s.agent.Run(r.Context(), q)
	resp := askResponse{FinalAnswer: state.FinalAnswer}
	if debug, _ := strconv.ParseBool(r.URL.Query().Get("debug")); debug {
		resp.State = state
	}
	metrics.HTTPRequestsTotal.WithLabelValues("/ask", "success").Inc()
	writeJSONResponse(w, resp)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe("/schema", start)

	tables, err := s.schema.Schema(r.Context())
	if err != nil {
		s.logger.Error("schema lookup failed", "err", err)
		fail(w, "/schema", "Failed to read schema", http.StatusInternalServerError)
		return
	}
	metrics.HTTPRequestsTotal.WithLabelValues("/schema", "success").Inc()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(storage.RenderSchema(tables) + "\n"))
		return
	}
	writeJSONResponse(w, map[string]any{"tables": tables})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.schema.Schema(r.Context()); err != nil {
		http.Error(w, "Structured store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, map[string]string{"status": "healthy"})
}

func observe(path string, start time.Time) {
	metrics.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

func fail(w http.ResponseWriter, path, msg string, status int) {
	metrics.HTTPRequestsTotal.WithLabelValues(path, "error").Inc()
	http.Error(w, msg, status)
}

func writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

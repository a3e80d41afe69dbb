// Package graph runs one question through the copilot's state graph: route,
// retrieve and plan, generate and repair a query, then synthesize a typed,
// cited answer.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abd2220/retail-copilot/internal/llm"
	"github.com/abd2220/retail-copilot/internal/metrics"
	"github.com/abd2220/retail-copilot/internal/retrieval"
	"github.com/abd2220/retail-copilot/internal/storage"
)

const (
	nodeRouter       = "router"
	nodeSearch       = "search_query_generator"
	nodeRetriever    = "retriever"
	nodePlanner      = "planner"
	nodeSQLGenerator = "sql_generator"
	nodeExecutor     = "executor"
	nodeRepair       = "repair"
	nodeSynthesizer  = "synthesizer"
	nodeEnd          = ""
)

// Store is the structured store as the graph sees it.
type Store interface {
	Schema(ctx context.Context) ([]storage.Table, error)
	Query(ctx context.Context, query string) (*storage.Rows, error)
}

type Options struct {
	MaxRetries   int
	TopK         int
	ContextLimit int
	StepLimit    int
	Dialect      string
	EmptyRows    EmptyRowsPolicy
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:   2,
		TopK:         3,
		ContextLimit: 500,
		StepLimit:    20,
		Dialect:      "SQLite",
		EmptyRows:    DefaultEmptyRowsPolicy(),
	}
}

type node struct {
	run  func(context.Context, *RunState) error
	next func(*RunState) string
}

// Agent holds the collaborators shared by runs. It keeps no per-run state, so
// one Agent can serve concurrent runs.
type Agent struct {
	llm       llm.Completer
	retriever retrieval.Retriever
	store     Store
	opts      Options
	logger    *slog.Logger
	nodes     map[string]node
}

// New builds an agent. retriever may be nil when no document corpus is
// configured; rag runs then end in a diagnostic answer.
func New(completer llm.Completer, retriever retrieval.Retriever, store Store, opts Options, logger *slog.Logger) *Agent {
	def := DefaultOptions()
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = def.ContextLimit
	}
	if opts.StepLimit <= 0 {
		opts.StepLimit = def.StepLimit
	}
	if opts.Dialect == "" {
		opts.Dialect = def.Dialect
	}
	if opts.EmptyRows.RequireRows == nil {
		opts.EmptyRows = def.EmptyRows
	}

	a := &Agent{llm: completer, retriever: retriever, store: store, opts: opts, logger: logger}
	a.nodes = map[string]node{
		nodeRouter:       {a.routerNode, afterRouter},
		nodeSearch:       {a.searchQueryNode, afterSearch},
		nodeRetriever:    {a.retrieverNode, afterRetriever},
		nodePlanner:      {a.plannerNode, always(nodeSQLGenerator)},
		nodeSQLGenerator: {a.sqlGeneratorNode, afterSQLGenerator},
		nodeExecutor:     {a.executorNode, always(nodeRepair)},
		nodeRepair:       {a.repairNode, afterRepair},
		nodeSynthesizer:  {a.synthesizerNode, always(nodeEnd)},
	}
	return a
}

func always(name string) func(*RunState) string {
	return func(*RunState) string { return name }
}

func afterRouter(s *RunState) string {
	if s.Route == RouteSQL {
		return nodeSQLGenerator
	}
	return nodeSearch
}

func afterSearch(s *RunState) string {
	if len(s.SearchQueries) == 0 {
		return nodeSQLGenerator
	}
	return nodeRetriever
}

func afterRetriever(s *RunState) string {
	if s.Route == RouteHybrid {
		return nodePlanner
	}
	return nodeSynthesizer
}

func afterSQLGenerator(s *RunState) string {
	if s.Repair == RepairFailed {
		return nodeSynthesizer
	}
	return nodeExecutor
}

func afterRepair(s *RunState) string {
	if s.Repair == RepairNotRun {
		return nodeSQLGenerator
	}
	return nodeSynthesizer
}

// Run answers one question. It never fails: every path ends in a final
// answer, diagnostic when the run aborts.
func (a *Agent) Run(ctx context.Context, q Question) *RunState {
	runID := uuid.NewString()
	s := newRunState(runID, q)
	if s.ID == "" {
		s.ID = runID
	}
	a.logger.Info("run started", "run_id", runID, "id", s.ID)

	if err := a.walk(ctx, s); err != nil {
		ge := asGraphError(err)
		a.logger.Error("run aborted", "run_id", runID, "kind", ge.Kind, "err", ge)
		s.FinalAnswer = DiagnosticAnswer(s.ID, s.QueryText, ge)
	}

	metrics.RunsTotal.WithLabelValues(s.Route.String(), s.FinalAnswer.Outcome()).Inc()
	if s.Route.usesRows() && s.Repair != RepairNotRun {
		metrics.RepairAttempts.Observe(float64(s.RetryCount))
	}
	a.logger.Info("run finished", "run_id", runID, "route", s.Route, "outcome", s.FinalAnswer.Outcome(),
		"retry_count", s.RetryCount, "steps", len(s.Trace))
	return s
}

func (a *Agent) walk(ctx context.Context, s *RunState) error {
	current := nodeRouter
	for current != nodeEnd {
		if len(s.Trace) >= a.opts.StepLimit {
			return newError(KindInternal, current, fmt.Sprintf("step limit %d reached", a.opts.StepLimit), nil)
		}
		if err := ctx.Err(); err != nil {
			return newError(KindInternal, current, "run cancelled", err)
		}
		n, ok := a.nodes[current]
		if !ok {
			return newError(KindInternal, current, "unknown node", nil)
		}
		s.Trace = append(s.Trace, current)
		a.logger.Info("node", "run_id", s.RunID, "node", current, "route", s.Route, "retry_count", s.RetryCount)

		if err := a.runNode(ctx, current, n, s); err != nil {
			return err
		}
		current = n.next(s)
	}
	if s.FinalAnswer == nil {
		return newError(KindInternal, nodeSynthesizer, "graph ended without an answer", nil)
	}
	return nil
}

func (a *Agent) runNode(ctx context.Context, name string, n node, s *RunState) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindInternal, name, fmt.Sprintf("panic: %v", r), nil)
		}
		metrics.NodeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	return n.run(ctx, s)
}

func asGraphError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return newError(KindInternal, "", "unexpected failure", err)
}

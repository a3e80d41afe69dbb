package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abd2220/retail-copilot/internal/retrieval"
	"github.com/abd2220/retail-copilot/internal/storage"
)

// Route decides which evidence paths a run takes. The zero value means the
// router has not run yet.
type Route int

const (
	RouteUnset Route = iota
	RouteRAG
	RouteSQL
	RouteHybrid
)

func (r Route) String() string {
	switch r {
	case RouteRAG:
		return "rag"
	case RouteSQL:
		return "sql"
	case RouteHybrid:
		return "hybrid"
	default:
		return "unset"
	}
}

// ParseRoute accepts exactly "rag", "sql" or "hybrid" (case-insensitive).
func ParseRoute(label string) (Route, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "rag":
		return RouteRAG, nil
	case "sql":
		return RouteSQL, nil
	case "hybrid":
		return RouteHybrid, nil
	}
	return RouteUnset, fmt.Errorf("invalid route label %q", label)
}

func (r Route) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r Route) usesText() bool { return r == RouteRAG || r == RouteHybrid }
func (r Route) usesRows() bool { return r == RouteSQL || r == RouteHybrid }

// AnswerType is the declared output type of a question, from its format hint.
type AnswerType int

const (
	AnswerText AnswerType = iota
	AnswerInt
	AnswerFloat
	AnswerList
	AnswerObject
)

func (t AnswerType) String() string {
	return [...]string{"str", "int", "float", "list", "object"}[t]
}

// ParseFormatHint maps hints like "int", "float", "list[{product:str}]" or
// "{category:str, quantity:int}". Anything else is text.
func ParseFormatHint(hint string) AnswerType {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case h == "int" || h == "integer":
		return AnswerInt
	case h == "float" || h == "number":
		return AnswerFloat
	case strings.HasPrefix(h, "list"):
		return AnswerList
	case strings.HasPrefix(h, "{"):
		return AnswerObject
	default:
		return AnswerText
	}
}

// Question is one input record.
type Question struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Attempt is a failed structured-query attempt kept for repair feedback.
type Attempt struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// ExecutionResult holds the outcome of the latest execution: rows on success,
// otherwise the error.
type ExecutionResult struct {
	Rows *storage.Rows
	Err  *Error
}

func (r ExecutionResult) Failed() bool { return r.Err != nil }

// RepairStatus is the terminal state of the repair loop.
type RepairStatus int

const (
	RepairNotRun RepairStatus = iota
	RepairSucceeded
	RepairFailed
)

func (s RepairStatus) String() string {
	return [...]string{"not_run", "succeeded", "failed"}[s]
}

// RunState is owned by exactly one run and threaded through every node.
type RunState struct {
	RunID      string
	ID         string
	Question   string
	FormatHint string
	AnswerType AnswerType

	Route Route

	SearchQueries   []string
	RetrievedChunks []retrieval.Chunk
	Constraints     Constraints

	Schema       []storage.Table
	schemaLoaded bool
	QueryText    string
	QueryHistory []Attempt
	Result       ExecutionResult
	RetryCount   int
	Repair       RepairStatus

	FinalAnswer *FinalAnswer

	// Trace lists visited nodes in order; Warnings records contained failures.
	Trace    []string
	Warnings []string
}

func newRunState(runID string, q Question) *RunState {
	return &RunState{
		RunID:      runID,
		ID:         q.ID,
		Question:   q.Question,
		FormatHint: q.FormatHint,
		AnswerType: ParseFormatHint(q.FormatHint),
	}
}

var (
	errRouteSet = errors.New("route already set")
	errFinalSet = errors.New("final answer already set")
)

func (s *RunState) setRoute(r Route) error {
	if s.Route != RouteUnset {
		return errRouteSet
	}
	s.Route = r
	return nil
}

func (s *RunState) setFinalAnswer(a *FinalAnswer) error {
	if s.FinalAnswer != nil {
		return errFinalSet
	}
	s.FinalAnswer = a
	return nil
}

func (s *RunState) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// appendChunks adds chunks not retrieved before, keeping first-seen order.
func (s *RunState) appendChunks(chunks []retrieval.Chunk) {
	seen := make(map[string]bool, len(s.RetrievedChunks))
	for _, c := range s.RetrievedChunks {
		seen[c.ID] = true
	}
	for _, c := range chunks {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		s.RetrievedChunks = append(s.RetrievedChunks, c)
	}
}

// MarshalJSON gives a debugging view of the state.
func (s *RunState) MarshalJSON() ([]byte, error) {
	var execErr string
	if s.Result.Err != nil {
		execErr = s.Result.Err.Error()
	}
	return json.Marshal(struct {
		RunID         string       `json:"run_id"`
		ID            string       `json:"id"`
		Question      string       `json:"question"`
		Route         Route        `json:"route"`
		SearchQueries []string     `json:"search_queries,omitempty"`
		Chunks        int          `json:"retrieved_chunks"`
		Constraints   Constraints  `json:"constraints,omitempty"`
		QueryText     string       `json:"query_text,omitempty"`
		QueryHistory  []Attempt    `json:"query_history,omitempty"`
		ExecError     string       `json:"execution_error,omitempty"`
		RetryCount    int          `json:"retry_count"`
		Repair        string       `json:"repair"`
		Trace         []string     `json:"trace"`
		Warnings      []string     `json:"warnings,omitempty"`
		FinalAnswer   *FinalAnswer `json:"final_answer"`
	}{
		RunID: s.RunID, ID: s.ID, Question: s.Question, Route: s.Route,
		SearchQueries: s.SearchQueries, Chunks: len(s.RetrievedChunks), Constraints: s.Constraints,
		QueryText: s.QueryText, QueryHistory: s.QueryHistory, ExecError: execErr,
		RetryCount: s.RetryCount, Repair: s.Repair.String(), Trace: s.Trace,
		Warnings: s.Warnings, FinalAnswer: s.FinalAnswer,
	})
}

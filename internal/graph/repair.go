package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/abd2220/retail-copilot/internal/storage"
)

// emptyRowsMarker is recorded in the query history for an empty result.
const emptyRowsMarker = "query returned no rows"

// EmptyRowsPolicy decides when a successful but empty result is repairable.
type EmptyRowsPolicy struct {
	// RequireRows lists routes whose answers depend on rows.
	RequireRows map[Route]bool
	// NullRowsAreEmpty treats a result whose every cell is NULL (an aggregate
	// over no rows) as empty.
	NullRowsAreEmpty bool
}

func DefaultEmptyRowsPolicy() EmptyRowsPolicy {
	return EmptyRowsPolicy{
		RequireRows:      map[Route]bool{RouteSQL: true, RouteHybrid: true},
		NullRowsAreEmpty: true,
	}
}

// ParseEmptyRowsPolicy builds a policy from route names.
func ParseEmptyRowsPolicy(routes []string, nullRowsAreEmpty bool) (EmptyRowsPolicy, error) {
	p := EmptyRowsPolicy{RequireRows: map[Route]bool{}, NullRowsAreEmpty: nullRowsAreEmpty}
	for _, name := range routes {
		r, err := ParseRoute(name)
		if err != nil {
			return EmptyRowsPolicy{}, err
		}
		p.RequireRows[r] = true
	}
	return p, nil
}

// Unsatisfied reports whether rows fall short of what route requires.
func (p EmptyRowsPolicy) Unsatisfied(route Route, rows *storage.Rows) bool {
	if !p.RequireRows[route] {
		return false
	}
	return rows.Empty() || (p.NullRowsAreEmpty && rows.AllNull())
}

// repairNode is the exit check of the GENERATE -> EXECUTE loop. It records
// the failed attempt, then either schedules another generation (Repair stays
// RepairNotRun) or settles the loop as succeeded or failed.
func (a *Agent) repairNode(_ context.Context, s *RunState) error {
	res := s.Result
	switch {
	case !res.Failed() && !a.opts.EmptyRows.Unsatisfied(s.Route, res.Rows):
		s.Repair = RepairSucceeded
		return nil
	case res.Failed() && !res.Err.Retryable():
		s.Repair = RepairFailed
		a.logger.Warn("query not retryable", "run_id", s.RunID, "kind", res.Err.Kind, "err", res.Err.Message)
		return nil
	}

	msg := emptyRowsMarker
	if res.Failed() {
		msg = res.Err.Message
	}
	s.QueryHistory = append(s.QueryHistory, Attempt{Query: s.QueryText, Error: msg})

	if s.RetryCount >= a.opts.MaxRetries {
		if !res.Failed() {
			s.Result.Err = newError(KindExecution, nodeExecutor, emptyRowsMarker, nil)
		}
		s.Repair = RepairFailed
		a.logger.Warn("repair budget exhausted", "run_id", s.RunID, "attempts", len(s.QueryHistory), "err", msg)
		return nil
	}
	s.RetryCount++
	a.logger.Info("repairing query", "run_id", s.RunID, "retry_count", s.RetryCount, "err", msg)
	return nil
}

// formatRows renders a result for the synthesizer prompt:
//
//	Columns: a | b
//	(1, 'x')
func formatRows(rows *storage.Rows) string {
	if rows == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(rows.Columns, " | "))
	if len(rows.Records) == 0 {
		b.WriteString("\n(no rows)")
	}
	for _, rec := range rows.Records {
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = formatCell(v)
		}
		b.WriteString("\n(")
		b.WriteString(strings.Join(cells, ", "))
		b.WriteString(")")
	}
	return b.String()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + x + "'"
	case []byte:
		return "'" + string(x) + "'"
	default:
		return fmt.Sprint(x)
	}
}

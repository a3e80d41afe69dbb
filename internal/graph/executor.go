package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/abd2220/retail-copilot/internal/storage"
)

func (a *Agent) executorNode(ctx context.Context, s *RunState) error {
	if strings.TrimSpace(s.QueryText) == "" {
		s.Result = ExecutionResult{Err: newError(KindExecution, nodeExecutor, "generator produced no query", nil)}
		return nil
	}
	if err := storage.CheckReadOnly(s.QueryText); err != nil {
		s.Result = ExecutionResult{Err: newError(KindUnsafeQuery, nodeExecutor, err.Error(), nil)}
		return nil
	}

	rows, err := a.store.Query(ctx, s.QueryText)
	if err != nil {
		var qe *storage.QueryError
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return newError(KindInternal, nodeExecutor, "query interrupted", err)
		case storage.IsUnsafe(err):
			s.Result = ExecutionResult{Err: newError(KindUnsafeQuery, nodeExecutor, err.Error(), nil)}
		case errors.As(err, &qe):
			s.Result = ExecutionResult{Err: newError(KindExecution, nodeExecutor, qe.Message, nil)}
		default:
			s.Result = ExecutionResult{Err: newError(KindExecution, nodeExecutor, err.Error(), nil)}
		}
		a.logger.Debug("query failed", "run_id", s.RunID, "kind", s.Result.Err.Kind, "err", s.Result.Err.Message)
		return nil
	}
	s.Result = ExecutionResult{Rows: rows}
	a.logger.Debug("query executed", "run_id", s.RunID, "rows", len(rows.Records))
	return nil
}

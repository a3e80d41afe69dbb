package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const maxSearchQueries = 3

var listMarkerRe = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

func (a *Agent) searchQueryNode(ctx context.Context, s *RunState) error {
	out, err := a.llm.Complete(ctx, buildSearchPrompt(s.Question))
	if err != nil {
		return a.containText(s, backendError(ctx, nodeSearch, "search query generation failed", err))
	}
	queries := parseSearchQueries(out)
	if len(queries) == 0 {
		return a.containText(s, newError(KindPlanning, nodeSearch, "no search queries generated", nil))
	}
	s.SearchQueries = queries
	a.logger.Debug("search queries", "run_id", s.RunID, "queries", queries)
	return nil
}

func (a *Agent) retrieverNode(ctx context.Context, s *RunState) error {
	if a.retriever == nil {
		return a.containText(s, newError(KindBackend, nodeRetriever, "no document retriever configured", nil))
	}
	for _, q := range s.SearchQueries {
		chunks, err := a.retriever.Retrieve(ctx, q, a.opts.TopK)
		if err != nil {
			return a.containText(s, backendError(ctx, nodeRetriever, fmt.Sprintf("retrieve %q", q), err))
		}
		s.appendChunks(chunks)
	}
	a.logger.Debug("chunks retrieved", "run_id", s.RunID, "chunks", len(s.RetrievedChunks))
	return nil
}

// containText keeps a text-path failure inside a hybrid run, which can still
// answer from rows. On the rag route, and for cancellation, the failure is
// fatal.
func (a *Agent) containText(s *RunState, err *Error) error {
	if s.Route != RouteHybrid || err.Kind == KindInternal {
		return err
	}
	s.warn("%s", err.Error())
	a.logger.Warn("text path failed, continuing on rows", "run_id", s.RunID, "kind", err.Kind, "err", err)
	return nil
}

// parseSearchQueries reads one query per line, dropping list markers, labels
// and duplicates.
func parseSearchQueries(out string) []string {
	var queries []string
	seen := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		q := listMarkerRe.ReplaceAllString(strings.TrimSpace(line), "")
		lower := strings.ToLower(q)
		for _, prefix := range []string{"search query:", "query:", "queries:"} {
			if strings.HasPrefix(lower, prefix) {
				q = strings.TrimSpace(q[len(prefix):])
				break
			}
		}
		q = strings.TrimSpace(strings.Trim(q, "\"'`"))
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		queries = append(queries, q)
		if len(queries) == maxSearchQueries {
			break
		}
	}
	return queries
}

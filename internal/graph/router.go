package graph

import (
	"context"
	"strings"
)

func (a *Agent) routerNode(ctx context.Context, s *RunState) error {
	out, err := a.llm.Complete(ctx, buildRouterPrompt(s.Question))
	if err != nil {
		return backendError(ctx, nodeRouter, "route classification failed", err)
	}
	label := normalizeLabel(out)
	route, err := ParseRoute(label)
	if err != nil {
		return newError(KindClassification, nodeRouter, "router returned "+quoteLabel(out), nil)
	}
	if err := s.setRoute(route); err != nil {
		return newError(KindInternal, nodeRouter, err.Error(), nil)
	}
	a.logger.Debug("question routed", "run_id", s.RunID, "route", route)
	return nil
}

// normalizeLabel strips formatting around a one-word label: quotes,
// backticks, bold markers, a "label:" prefix and a trailing period. It never
// searches prose for a label.
func normalizeLabel(out string) string {
	label := strings.TrimSpace(out)
	if i := strings.IndexByte(label, '\n'); i >= 0 {
		label = strings.TrimSpace(label[:i])
	}
	lower := strings.ToLower(label)
	for _, prefix := range []string{"label:", "route:", "strategy:"} {
		if strings.HasPrefix(lower, prefix) {
			label = strings.TrimSpace(label[len(prefix):])
			break
		}
	}
	label = strings.Trim(label, "\"'`*")
	label = strings.TrimSuffix(label, ".")
	return strings.Trim(label, "\"'`* ")
}

func quoteLabel(out string) string {
	out = strings.TrimSpace(out)
	if r := []rune(out); len(r) > 40 {
		out = string(r[:40]) + "..."
	}
	return `"` + out + `"`
}

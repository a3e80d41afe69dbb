package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Constraint names with special handling.
const (
	ConstraintStart    = "date_range.start"
	ConstraintEnd      = "date_range.end"
	ConstraintFormula  = "formula"
	ConstraintCategory = "category"
)

// Constraints maps a constraint name to its resolved value.
type Constraints map[string]string

// DateRange returns the resolved date range, if both bounds are present.
func (c Constraints) DateRange() (start, end string, ok bool) {
	start, okStart := c[ConstraintStart]
	end, okEnd := c[ConstraintEnd]
	return start, end, okStart && okEnd
}

// Render lists constraints for a prompt, date range first, then by name.
func (c Constraints) Render() string {
	var lines []string
	if start, end, ok := c.DateRange(); ok {
		lines = append(lines, fmt.Sprintf("Date Range: %s to %s (inclusive)", start, end))
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		if k == ConstraintStart || k == ConstraintEnd {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, c[k]))
	}
	return strings.Join(lines, "\n")
}

// Validate checks date bounds are real dates and start <= end.
func (c Constraints) Validate() error {
	var bounds [2]time.Time
	for i, key := range []string{ConstraintStart, ConstraintEnd} {
		v, ok := c[key]
		if !ok {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return fmt.Errorf("%s %q is not a valid date", key, v)
		}
		bounds[i] = t
	}
	if start, end, ok := c.DateRange(); ok && bounds[0].After(bounds[1]) {
		return fmt.Errorf("date range start %s is after end %s", start, end)
	}
	return nil
}

var (
	constraintLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z _.-]*?)\s*[:=]\s*(.+)$`)
	dateRe           = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// parseConstraints reads "Name: value" lines. "Date Range" values become
// start and end bounds; lone dates in start/end lines set one bound each.
func parseConstraints(out string) Constraints {
	c := Constraints{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(strings.TrimSpace(line), ""))
		m := constraintLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(m[1]))
		value := strings.Trim(strings.TrimSpace(m[2]), "\"'`")
		if value == "" || isNone(value) {
			continue
		}
		key := strings.ReplaceAll(strings.ReplaceAll(name, " ", "_"), "-", "_")

		switch key {
		case "date_range", "dates", "period":
			if dates := dateRe.FindAllString(value, -1); len(dates) >= 2 {
				c[ConstraintStart], c[ConstraintEnd] = dates[0], dates[1]
				continue
			}
		case "start_date", "start", "from":
			if d := dateRe.FindString(value); d != "" {
				c[ConstraintStart] = d
				continue
			}
		case "end_date", "end", "to":
			if d := dateRe.FindString(value); d != "" {
				c[ConstraintEnd] = d
				continue
			}
		}
		c[key] = value
	}
	return c
}

func isNone(s string) bool {
	switch strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), ".")) {
	case "none", "n/a", "na", "null", "nothing":
		return true
	}
	return false
}

func (a *Agent) plannerNode(ctx context.Context, s *RunState) error {
	if len(s.RetrievedChunks) == 0 {
		a.logger.Debug("planner skipped, no context", "run_id", s.RunID)
		return nil
	}
	parts := make([]string, len(s.RetrievedChunks))
	for i, c := range s.RetrievedChunks {
		parts[i] = c.Text
	}
	out, err := a.llm.Complete(ctx, buildPlannerPrompt(s.Question, strings.Join(parts, "\n\n")))
	if err != nil {
		return a.containText(s, backendError(ctx, nodePlanner, "constraint extraction failed", err))
	}

	constraints := parseConstraints(out)
	if len(constraints) == 0 && !isNone(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(out)), "constraints:")) {
		return a.containText(s, newError(KindPlanning, nodePlanner, "no usable constraints in planner output", nil))
	}
	if err := constraints.Validate(); err != nil {
		return newError(KindConstraint, nodePlanner, err.Error(), nil)
	}
	s.Constraints = constraints
	a.logger.Debug("constraints extracted", "run_id", s.RunID, "constraints", len(constraints))
	return nil
}

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/abd2220/retail-copilot/internal/storage"
)

func (a *Agent) synthesizerNode(ctx context.Context, s *RunState) error {
	useText := s.Route.usesText() && len(s.RetrievedChunks) > 0
	useRows := s.Route.usesRows() && s.Repair == RepairSucceeded && s.Result.Rows != nil
	structuredFailed := s.Route.usesRows() && s.Repair == RepairFailed

	if !useText && !useRows {
		return s.setFinalAnswer(unableAnswer(s.ID, s.QueryText, unableReason(s)))
	}

	var tables []string
	if useRows {
		tables = referencedTables(s.QueryText, storage.TableNames(s.Schema))
	}
	allowed := []string{}
	if useText {
		for _, c := range s.RetrievedChunks {
			allowed = append(allowed, c.ID)
		}
	}
	allowed = append(allowed, tables...)

	answer := &FinalAnswer{
		ID:         s.ID,
		SQL:        s.QueryText,
		Confidence: confidence(s.RetryCount, structuredFailed),
	}

	if v, ok := directValue(s.AnswerType, s.Result.Rows, useRows); ok {
		answer.Value = v
		answer.Explanation = directExplanation(tables, useText)
		answer.Citations = allowed
		return s.setFinalAnswer(answer)
	}

	var docs, rows string
	if useText {
		docs = renderChunks(s)
	}
	if useRows {
		rows = truncateContext(formatRows(s.Result.Rows), a.opts.ContextLimit)
	}
	query := ""
	if useRows {
		query = s.QueryText
	}
	out, err := a.llm.Complete(ctx, buildSynthesizerPrompt(s.FormatHint, s.Question, docs, query, rows))
	if err != nil {
		return backendError(ctx, nodeSynthesizer, "answer composition failed", err)
	}

	fields := parseFields(out, "answer", "explanation", "citations")
	raw, ok := fields["answer"]
	if !ok {
		raw = strings.TrimSpace(out)
	}
	value, err := coerce(raw, s.AnswerType)
	if err != nil {
		return newError(KindSynthesisType, nodeSynthesizer, err.Error(), nil)
	}
	answer.Value = value
	answer.Explanation = fields["explanation"]

	citations, stripped := assembleCitations(splitCitations(fields["citations"]), allowed)
	for _, c := range stripped {
		e := newError(KindCitationIntegrity, nodeSynthesizer, fmt.Sprintf("stripped citation %q not used in this run", c), nil)
		s.warn("%s", e.Error())
		a.logger.Warn("citation stripped", "run_id", s.RunID, "citation", c)
	}
	answer.Citations = citations
	return s.setFinalAnswer(answer)
}

func unableReason(s *RunState) string {
	switch {
	case s.Route.usesRows() && s.Result.Err != nil:
		return fmt.Sprintf("structured query failed (%d repair attempt(s)): %s", s.RetryCount, s.Result.Err.Error())
	case s.Route.usesText():
		return "no relevant documents were retrieved"
	default:
		return "no evidence was produced"
	}
}

func renderChunks(s *RunState) string {
	parts := make([]string, len(s.RetrievedChunks))
	for i, c := range s.RetrievedChunks {
		parts[i] = fmt.Sprintf("[%s]\n%s", c.ID, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// truncateContext keeps the first limit characters of s.
func truncateContext(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// directValue uses a single numeric cell as the answer to a numeric question.
func directValue(t AnswerType, rows *storage.Rows, useRows bool) (any, bool) {
	if !useRows || rows == nil || len(rows.Records) != 1 || len(rows.Records[0]) != 1 {
		return nil, false
	}
	f, ok := numericCell(rows.Records[0][0])
	if !ok {
		return nil, false
	}
	switch t {
	case AnswerFloat:
		return round2(f), true
	case AnswerInt:
		if f != math.Trunc(f) {
			return nil, false
		}
		return int64(f), true
	}
	return nil, false
}

func numericCell(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func directExplanation(tables []string, withDocs bool) string {
	src := "the executed query"
	if len(tables) > 0 {
		src = "the executed query over " + strings.Join(tables, ", ")
	}
	if withDocs {
		return "Computed by " + src + ", using constraints from the retrieved documents."
	}
	return "Computed by " + src + "."
}

var numberRe = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?|[-+]?\.\d+`)

// coerce converts the composed answer into the declared type.
func coerce(raw string, t AnswerType) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case AnswerInt:
		f, err := firstNumber(raw)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("answer %q is not an integer", raw)
		}
		return int64(f), nil
	case AnswerFloat:
		f, err := firstNumber(raw)
		if err != nil {
			return nil, err
		}
		return round2(f), nil
	case AnswerList:
		return decodeJSON(raw, '[', ']')
	case AnswerObject:
		return decodeJSON(raw, '{', '}')
	default:
		text := strings.Trim(raw, "\"'`")
		if text == "" {
			return nil, fmt.Errorf("empty answer")
		}
		return text, nil
	}
}

func firstNumber(raw string) (float64, error) {
	m := numberRe.FindString(raw)
	if m == "" {
		return 0, fmt.Errorf("answer %q has no number", raw)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("answer %q: %w", raw, err)
	}
	return f, nil
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func decodeJSON(raw string, open, closing byte) (any, error) {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, closing)
	if start < 0 || end < start {
		return nil, fmt.Errorf("answer %q is not a JSON %s", raw, jsonKind(open))
	}
	var v any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("answer is not a valid JSON %s: %w", jsonKind(open), err)
	}
	return v, nil
}

func jsonKind(open byte) string {
	if open == '[' {
		return "list"
	}
	return "object"
}

// parseFields reads "KEY: value" sections from a completion. Lines that do
// not start a known key continue the previous field.
func parseFields(out string, keys ...string) map[string]string {
	fields := map[string]string{}
	var current string
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "*#"))
		matched := false
		for _, k := range keys {
			if len(trimmed) > len(k) && strings.EqualFold(trimmed[:len(k)], k) {
				rest := strings.TrimLeft(trimmed[len(k):], "*")
				if strings.HasPrefix(rest, ":") {
					current = k
					fields[k] = strings.TrimSpace(strings.TrimLeft(rest[1:], "*"))
					matched = true
					break
				}
			}
		}
		if !matched && current != "" && trimmed != "" {
			fields[current] = strings.TrimSpace(fields[current] + "\n" + trimmed)
		}
	}
	return fields
}

func splitCitations(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ';' }) {
		part = strings.Trim(strings.TrimSpace(part), "\"'`[]")
		if part != "" && !isNone(part) {
			out = append(out, part)
		}
	}
	return out
}

// assembleCitations keeps proposed citations that name evidence used in this
// run, then adds the remaining evidence. Anything else is returned as stripped.
func assembleCitations(proposed, allowed []string) (citations, stripped []string) {
	canonical := make(map[string]string, len(allowed))
	for _, a := range allowed {
		canonical[strings.ToLower(a)] = a
	}
	seen := map[string]bool{}
	citations = []string{}
	for _, p := range proposed {
		c, ok := canonical[strings.ToLower(p)]
		if !ok {
			stripped = append(stripped, p)
			continue
		}
		if !seen[c] {
			seen[c] = true
			citations = append(citations, c)
		}
	}
	for _, a := range allowed {
		if !seen[a] {
			seen[a] = true
			citations = append(citations, a)
		}
	}
	return citations, stripped
}

package graph

import (
	"context"
	"regexp"
	"strings"

	"github.com/abd2220/retail-copilot/internal/storage"
)

func (a *Agent) sqlGeneratorNode(ctx context.Context, s *RunState) error {
	if !s.schemaLoaded {
		tables, err := a.store.Schema(ctx)
		if err != nil {
			return a.failStructured(s, backendError(ctx, nodeSQLGenerator, "schema unavailable", err))
		}
		s.Schema, s.schemaLoaded = tables, true
	}

	prompt := buildSQLPrompt(a.opts.Dialect, s.Question, storage.RenderSchema(s.Schema), s.Constraints, s.QueryHistory)
	out, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return a.failStructured(s, backendError(ctx, nodeSQLGenerator, "query generation failed", err))
	}

	s.QueryText = quoteTables(sanitizeQuery(out), storage.TableNames(s.Schema))
	if start, end, ok := s.Constraints.DateRange(); ok {
		if !strings.Contains(s.QueryText, start) || !strings.Contains(s.QueryText, end) {
			s.warn("generated query does not contain date range %s to %s", start, end)
		}
	}
	a.logger.Debug("query generated", "run_id", s.RunID, "attempt", s.RetryCount+1, "query", s.QueryText)
	return nil
}

// failStructured ends the structured path without an executed attempt.
// A cancelled run is not a structured failure and ends the graph.
func (a *Agent) failStructured(s *RunState, err *Error) error {
	if err.Kind == KindInternal {
		return err
	}
	s.Result = ExecutionResult{Err: err}
	s.Repair = RepairFailed
	a.logger.Warn("structured path failed", "run_id", s.RunID, "kind", err.Kind, "err", err)
	return nil
}

var (
	fenceRe       = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)```")
	sqlLabelRe    = regexp.MustCompile(`(?i)^(?:sql(?:ite)?\s*(?:query)?\s*:\s*)`)
	sqlStartRe    = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
	sqlContinueRe = regexp.MustCompile(`(?i)^(?:[(),]|(?:SELECT|FROM|WHERE|GROUP\s+BY|ORDER\s+BY|HAVING|LIMIT|OFFSET|JOIN|INNER|LEFT|RIGHT|FULL|CROSS|NATURAL|ON|USING|AND|OR|UNION|INTERSECT|EXCEPT)\b)`)
)

// sanitizeQuery pulls the statement out of a completion, without labels or
// trailing semicolons. A fenced block is kept whole from its first SELECT or
// WITH line. Unfenced text runs from the first such line to a blank line
// followed by something that does not continue the query.
func sanitizeQuery(out string) string {
	text := strings.TrimSpace(out)
	fenced := false
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
		fenced = true
	}
	text = strings.ReplaceAll(text, "```", "")

	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		line = sqlLabelRe.ReplaceAllString(strings.TrimSpace(line), "")
		if sqlStartRe.MatchString(line) {
			lines[i] = line
			start = i
			break
		}
	}
	if start >= 0 {
		lines = lines[start:]
		if !fenced {
			lines = cutTrailingProse(lines)
		}
	}
	query := strings.TrimSpace(strings.Join(lines, "\n"))
	query = sqlLabelRe.ReplaceAllString(query, "")
	return strings.TrimSpace(strings.TrimRight(query, "; \t\n"))
}

// cutTrailingProse ends the query at the first blank line that closes a
// statement (the line before it ends in ';') or is followed by a line that
// does not continue SQL.
func cutTrailingProse(lines []string) []string {
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			continue
		}
		next := i
		for next < len(lines) && strings.TrimSpace(lines[next]) == "" {
			next++
		}
		closed := i > 0 && strings.HasSuffix(strings.TrimSpace(lines[i-1]), ";")
		if next == len(lines) || closed || !sqlContinueRe.MatchString(strings.TrimSpace(lines[next])) {
			return lines[:i]
		}
		i = next
	}
	return lines
}

// quoteTables rewrites unquoted or mis-spelled multi-word table names
// (Order Details, Order_Details, OrderDetails, [Order Details]) to their
// double-quoted schema spelling. String literals are left alone.
func quoteTables(query string, tables []string) string {
	var patterns []*regexp.Regexp
	var names []string
	for _, t := range tables {
		words := strings.Fields(t)
		if len(words) < 2 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		patterns = append(patterns, regexp.MustCompile("(?i)[\"`\\[]?\\b"+strings.Join(words, `[\s_]*`)+"\\b[\"`\\]]?"))
		names = append(names, storage.QuoteIdent(t))
	}
	if len(patterns) == 0 {
		return query
	}
	return mapOutsideLiterals(query, func(code string) string {
		for i, re := range patterns {
			code = re.ReplaceAllLiteralString(code, names[i])
		}
		return code
	})
}

// mapOutsideLiterals applies fn to every segment of q outside single-quoted
// string literals.
func mapOutsideLiterals(q string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(q); i++ {
		if q[i] != '\'' {
			continue
		}
		b.WriteString(fn(q[last:i]))
		end := i + 1
		for end < len(q) {
			if q[end] == '\'' {
				if end+1 < len(q) && q[end+1] == '\'' {
					end += 2
					continue
				}
				break
			}
			end++
		}
		if end >= len(q) {
			end = len(q) - 1
		}
		b.WriteString(q[i : end+1])
		i = end
		last = end + 1
	}
	if last < len(q) {
		b.WriteString(fn(q[last:]))
	}
	return b.String()
}

// referencedTables returns the schema tables the query reads, in schema
// order: names in FROM lists and after JOIN. Aliases, qualified columns and
// literals are ignored.
func referencedTables(query string, tables []string) []string {
	toks := lexSQL(query)
	used := map[string]bool{}
	for i := range toks {
		if !toks[i].is("FROM") && !toks[i].is("JOIN") {
			continue
		}
		for j := i + 1; ; {
			name, next, ok := tableRef(toks, j)
			if !ok {
				break
			}
			used[strings.ToLower(name)] = true
			next = skipAlias(toks, next)
			if next >= len(toks) || toks[next].text != "," {
				break
			}
			j = next + 1
		}
	}
	var out []string
	for _, t := range tables {
		if used[strings.ToLower(t)] {
			out = append(out, t)
		}
	}
	return out
}

type sqlToken struct {
	text   string
	ident  bool
	quoted bool
}

// is reports whether the token is the unquoted keyword kw.
func (t sqlToken) is(kw string) bool {
	return t.ident && !t.quoted && strings.EqualFold(t.text, kw)
}

// clauseWords end a table reference; they are never aliases.
var clauseWords = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "OUTER": true, "CROSS": true, "NATURAL": true, "ON": true,
	"USING": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "UNION": true, "EXCEPT": true, "INTERSECT": true,
	"WINDOW": true, "SELECT": true, "FROM": true, "AS": true, "LATERAL": true,
}

func (t sqlToken) nameLike() bool {
	return t.ident && (t.quoted || !clauseWords[strings.ToUpper(t.text)])
}

// tableRef reads a possibly schema-qualified table name at toks[i] and
// returns the unqualified name and the index after it.
func tableRef(toks []sqlToken, i int) (string, int, bool) {
	if i >= len(toks) || !toks[i].nameLike() {
		return "", i, false
	}
	name := toks[i].text
	i++
	for i+1 < len(toks) && toks[i].text == "." && toks[i+1].ident {
		name = toks[i+1].text
		i += 2
	}
	return name, i, true
}

func skipAlias(toks []sqlToken, i int) int {
	if i < len(toks) && toks[i].is("AS") {
		i++
	}
	if i < len(toks) && toks[i].nameLike() {
		i++
	}
	return i
}

// lexSQL splits a query into identifiers and single-character punctuation.
// String literals and -- comments are dropped; "x", `x` and [x] become
// quoted identifiers.
func lexSQL(q string) []sqlToken {
	var toks []sqlToken
	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == '\'':
			end := strings.IndexByte(q[i+1:], '\'')
			if end < 0 {
				return toks
			}
			i += end + 2
		case c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			end := strings.IndexByte(q[i+1:], closer)
			if end < 0 {
				return toks
			}
			toks = append(toks, sqlToken{text: q[i+1 : i+1+end], ident: true, quoted: true})
			i += end + 2
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			end := strings.IndexByte(q[i:], '\n')
			if end < 0 {
				return toks
			}
			i += end
		case isWordByte(c):
			j := i
			for j < len(q) && isWordByte(q[j]) {
				j++
			}
			toks = append(toks, sqlToken{text: q[i:j], ident: true})
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			toks = append(toks, sqlToken{text: string(c)})
			i++
		}
	}
	return toks
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

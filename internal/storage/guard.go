package storage

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnsafeQuery is returned for statements that could modify the store.
var ErrUnsafeQuery = errors.New("unsafe query")

// forbidden keywords may not appear anywhere outside literals and quoted
// identifiers. INTO covers SELECT ... INTO on Postgres.
var forbidden = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true, "ALTER": true,
	"CREATE": true, "TRUNCATE": true, "ATTACH": true, "DETACH": true, "PRAGMA": true,
	"VACUUM": true, "REINDEX": true, "GRANT": true, "REVOKE": true, "MERGE": true,
	"UPSERT": true, "COPY": true, "CALL": true, "EXEC": true, "EXECUTE": true,
	"LOCK": true, "INTO": true, "SET": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true,
}

// CheckReadOnly rejects anything that is not a single SELECT (or WITH ... SELECT)
// statement.
func CheckReadOnly(query string) error {
	stripped := stripLiterals(query)

	statements := 0
	for _, part := range strings.Split(stripped, ";") {
		if strings.TrimSpace(part) != "" {
			statements++
		}
	}
	if statements == 0 {
		return fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	}
	if statements > 1 {
		return fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	}

	words := strings.FieldsFunc(stripped, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if len(words) == 0 {
		return fmt.Errorf("%w: empty statement", ErrUnsafeQuery)
	}
	switch first := strings.ToUpper(words[0]); first {
	case "SELECT", "WITH":
	default:
		return fmt.Errorf("%w: statement starts with %s", ErrUnsafeQuery, first)
	}
	for _, w := range words {
		if upper := strings.ToUpper(w); forbidden[upper] {
			return fmt.Errorf("%w: %s is not allowed", ErrUnsafeQuery, upper)
		}
	}
	return nil
}

// stripLiterals blanks out comments, string literals and quoted identifiers so
// keyword scanning only sees SQL structure.
func stripLiterals(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			for i < len(q) && q[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			i += 2
			for i+1 < len(q) && !(q[i] == '*' && q[i+1] == '/') {
				i++
			}
			i++
			b.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(q, i, c)
			b.WriteString(" x ")
		case c == '[':
			for i < len(q) && q[i] != ']' {
				i++
			}
			b.WriteString(" x ")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// skipQuoted returns the index of the closing quote; doubled quotes escape.
func skipQuoted(q string, start int, quote byte) int {
	i := start + 1
	for i < len(q) {
		if q[i] == quote {
			if i+1 < len(q) && q[i+1] == quote {
				i += 2
				continue
			}
			return i
		}
		i++
	}
	return len(q)
}

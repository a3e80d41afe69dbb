package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// QueryError carries the engine's error message verbatim. The repair loop
// feeds Message back into query generation, so it must not be reworded.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string { return e.Message }

// Rows is the ordered result of a successful query.
type Rows struct {
	Columns []string
	Records [][]any
}

func (r *Rows) Empty() bool { return r == nil || len(r.Records) == 0 }

// AllNull reports whether every cell of every record is NULL, e.g. SUM over no rows.
func (r *Rows) AllNull() bool {
	if r.Empty() {
		return false
	}
	for _, rec := range r.Records {
		for _, v := range rec {
			if v != nil {
				return false
			}
		}
	}
	return true
}

// SQLStore is the read-only structured store. SQLite goes through the pure Go
// modernc driver, Postgres through lib/pq.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	tables  []string
	logger  *slog.Logger
}

// Open connects to the store. SQLite files are opened read-only.
func Open(ctx context.Context, dialect Dialect, dsn string, tables []string, logger *slog.Logger) (*SQLStore, error) {
	var driver string
	switch dialect {
	case SQLite:
		driver = "sqlite"
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn + "?mode=ro"
		}
	case Postgres:
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", dialect, err)
	}
	logger.Info("connected to structured store", "dialect", dialect)
	return NewSQLStore(db, dialect, tables, logger), nil
}

// NewSQLStore wraps an existing connection. tables restricts the schema that is
// exposed to query generation; empty means every table.
func NewSQLStore(db *sql.DB, dialect Dialect, tables []string, logger *slog.Logger) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, tables: tables, logger: logger}
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) Close() error { return s.db.Close() }

// Query runs a single read-only statement. Mutating statements are rejected
// with ErrUnsafeQuery before anything reaches the engine; engine failures come
// back as *QueryError.
func (s *SQLStore) Query(ctx context.Context, query string) (*Rows, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	var (
		rows *sql.Rows
		err  error
	)
	if s.dialect == Postgres {
		tx, txErr := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if txErr != nil {
			return nil, fmt.Errorf("begin read-only tx: %w", txErr)
		}
		defer tx.Rollback()
		rows, err = tx.QueryContext(ctx, query)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &QueryError{Message: err.Error()}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Message: err.Error()}
	}
	out := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Message: err.Error()}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Records = append(out.Records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Message: err.Error()}
	}
	return out, nil
}

// Schema lists tables and their columns. With an allow-list, tables keep the
// allow-list order and missing ones are skipped.
func (s *SQLStore) Schema(ctx context.Context) ([]Table, error) {
	var (
		all []Table
		err error
	)
	switch s.dialect {
	case Postgres:
		all, err = s.postgresSchema(ctx)
	default:
		all, err = s.sqliteSchema(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(s.tables) == 0 {
		return all, nil
	}

	byName := make(map[string]Table, len(all))
	for _, t := range all {
		byName[strings.ToLower(t.Name)] = t
	}
	var out []Table
	for _, name := range s.tables {
		t, ok := byName[strings.ToLower(name)]
		if !ok {
			s.logger.Debug("schema table not found", "table", name)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLStore) sqliteSchema(ctx context.Context) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := s.sqliteColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", name, err)
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, nil
}

func (s *SQLStore) sqliteColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, Type: typ})
	}
	return cols, rows.Err()
}

func (s *SQLStore) postgresSchema(ctx context.Context) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	index := map[string]int{}
	var tables []Table
	for rows.Next() {
		var table, col, typ string
		if err := rows.Scan(&table, &col, &typ); err != nil {
			return nil, err
		}
		i, ok := index[table]
		if !ok {
			i = len(tables)
			index[table] = i
			tables = append(tables, Table{Name: table})
		}
		tables[i].Columns = append(tables[i].Columns, Column{Name: col, Type: strings.ToUpper(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// IsUnsafe reports whether err came from the read-only guard.
func IsUnsafe(err error) bool { return errors.Is(err, ErrUnsafeQuery) }

package graph

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/abd2220/retail-copilot/internal/logging"
	"github.com/abd2220/retail-copilot/internal/retrieval"
	"github.com/abd2220/retail-copilot/internal/storage"
)

// scriptedLLM answers each prompt kind from its own queue. The last entry of a
// queue repeats once the queue is drained.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	prompts map[string][]string
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{replies: map[string][]string{}, prompts: map[string][]string{}}
}

func (l *scriptedLLM) on(kind string, replies ...string) *scriptedLLM {
	l.replies[kind] = append(l.replies[kind], replies...)
	return l
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "routing agent"):
		return nodeRouter
	case strings.Contains(prompt, "search queries for document retrieval"):
		return nodeSearch
	case strings.Contains(prompt, "You are a planner"):
		return nodePlanner
	case strings.Contains(prompt, "expert for a retail database"):
		return nodeSQLGenerator
	case strings.Contains(prompt, "information extraction machine"):
		return nodeSynthesizer
	}
	return "unknown"
}

func (l *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := promptKind(prompt)
	l.prompts[kind] = append(l.prompts[kind], prompt)
	queue := l.replies[kind]
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + kind)
	}
	reply := queue[0]
	if len(queue) > 1 {
		l.replies[kind] = queue[1:]
	}
	return reply, nil
}

func (l *scriptedLLM) calls(kind string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prompts[kind]
}

type fakeRetriever struct {
	chunks  []retrieval.Chunk
	err     error
	queries []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]retrieval.Chunk, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.chunks) > topK {
		return r.chunks[:topK], nil
	}
	return r.chunks, nil
}

// fixedStore returns the same rows for any query.
type fixedStore struct {
	tables []storage.Table
	rows   *storage.Rows
}

func (f *fixedStore) Schema(context.Context) ([]storage.Table, error) { return f.tables, nil }

func (f *fixedStore) Query(context.Context, string) (*storage.Rows, error) { return f.rows, nil }

func newNorthwind(t *testing.T) *storage.SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "northwind.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seed := []string{
		`CREATE TABLE Orders (OrderID INTEGER PRIMARY KEY, CustomerID TEXT, OrderDate TEXT)`,
		`CREATE TABLE "Order Details" (OrderID INTEGER, ProductID INTEGER, UnitPrice REAL, Quantity INTEGER, Discount REAL)`,
		`CREATE TABLE Products (ProductID INTEGER PRIMARY KEY, ProductName TEXT, UnitPrice REAL)`,
		`CREATE TABLE Suppliers (SupplierID INTEGER PRIMARY KEY, CompanyName TEXT)`,
		`INSERT INTO Orders VALUES (1, 'ALFKI', '1997-06-05'), (2, 'BONAP', '1997-07-01'), (3, 'ALFKI', '1997-06-20')`,
		`INSERT INTO "Order Details" VALUES (1, 10, 10.5, 2, 0), (2, 11, 20.0, 1, 0), (3, 11, 19.0, 1, 0)`,
		`INSERT INTO Products VALUES (10, 'Chai', 18.0), (11, 'Chang', 19.0)`,
		`INSERT INTO Suppliers VALUES (1, 'Exotic Liquids')`,
	}
	for _, stmt := range seed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	return storage.NewSQLStore(db, storage.SQLite, []string{"Orders", "Order Details", "Products", "Suppliers"}, logging.Discard())
}

func newTestAgent(l *scriptedLLM, r retrieval.Retriever, store Store) *Agent {
	return New(l, r, store, DefaultOptions(), logging.Discard())
}

// cancellingLLM cancels the run when it sees a prompt of the given kind and
// fails that call; other prompts go to the script.
type cancellingLLM struct {
	*scriptedLLM
	kind   string
	cancel context.CancelFunc
}

func (l *cancellingLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if promptKind(prompt) == l.kind {
		l.cancel()
		return "", ctx.Err()
	}
	return l.scriptedLLM.Complete(ctx, prompt)
}

// emptyStore has no tables and rejects every query.
type emptyStore struct {
	schemaCalls int
}

func (e *emptyStore) Schema(context.Context) ([]storage.Table, error) {
	e.schemaCalls++
	return nil, nil
}

func (e *emptyStore) Query(context.Context, string) (*storage.Rows, error) {
	return nil, &storage.QueryError{Message: "no such table: Orders"}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abd2220/retail-copilot/internal/graph"
	"github.com/abd2220/retail-copilot/internal/logging"
	"github.com/abd2220/retail-copilot/internal/storage"
)

type stubAgent struct {
	got graph.Question
}

func (a *stubAgent) Run(_ context.Context, q graph.Question) *graph.RunState {
	a.got = q
	return &graph.RunState{
		ID:    q.ID,
		Route: graph.RouteSQL,
		Trace: []string{"router", "sql_generator", "executor", "repair", "synthesizer"},
		FinalAnswer: &graph.FinalAnswer{
			ID: q.ID, Value: 3.5, SQL: "SELECT 3.5", Confidence: 1,
			Explanation: "From Orders.", Citations: []string{"Orders"},
		},
	}
}

type stubSchema struct {
	err error
}

func (s stubSchema) Schema(context.Context) ([]storage.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []storage.Table{{Name: "Orders", Columns: []storage.Column{{Name: "OrderID", Type: "INTEGER"}}}}, nil
}

func TestAsk(t *testing.T) {
	agent := &stubAgent{}
	router := New(agent, stubSchema{}, logging.Discard()).Router()

	body := `{"id":"hybrid_aov","question":"AOV in winter?","format_hint":"float"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if agent.got.ID != "hybrid_aov" || agent.got.FormatHint != "float" {
		t.Errorf("question = %+v", agent.got)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["final_answer"] != 3.5 || resp["id"] != "hybrid_aov" || resp["sql"] != "SELECT 3.5" {
		t.Errorf("response = %v", resp)
	}
	if _, ok := resp["state"]; ok {
		t.Error("state included without debug")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask?debug=true", strings.NewReader(body)))
	if !strings.Contains(rec.Body.String(), `"trace":["router","sql_generator"`) {
		t.Errorf("debug response = %s", rec.Body)
	}
}

func TestAskRejectsBadInput(t *testing.T) {
	router := New(&stubAgent{}, stubSchema{}, logging.Discard()).Router()
	for _, body := range []string{"{", `{"id":"x","question":"  "}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /ask status = %d", rec.Code)
	}
}

func TestSchemaAndHealth(t *testing.T) {
	router := New(&stubAgent{}, stubSchema{}, logging.Discard()).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema?format=text", nil))
	if got := rec.Body.String(); got != "Table: Orders\nColumns: OrderID INTEGER\n" {
		t.Errorf("text schema = %q", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema", nil))
	if !strings.Contains(rec.Body.String(), `"name":"Orders"`) {
		t.Errorf("json schema = %s", rec.Body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	down := New(&stubAgent{}, stubSchema{err: errors.New("db gone")}, logging.Discard()).Router()
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health with store down = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := New(&stubAgent{}, stubSchema{}, logging.Discard()).Router()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/schema", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `copilot_http_requests_total{path="/schema",status="success"}`) {
		t.Error("http metrics not exported")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(&stubAgent{}, stubSchema{}, logging.Discard()).Serve(ctx, "0", time.Second)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

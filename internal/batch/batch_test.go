package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abd2220/retail-copilot/internal/config"
	"github.com/abd2220/retail-copilot/internal/graph"
	"github.com/abd2220/retail-copilot/internal/logging"
)

// slowRunner answers with the question text, finishing later questions first.
type slowRunner struct {
	inFlight, peak atomic.Int32
}

func (r *slowRunner) Run(_ context.Context, q graph.Question) *graph.RunState {
	n := r.inFlight.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer r.inFlight.Add(-1)
	time.Sleep(time.Duration(10-len(q.ID)) * time.Millisecond)

	s := &graph.RunState{ID: q.ID, Route: graph.RouteRAG}
	if q.Question == "fail" {
		s.FinalAnswer = graph.DiagnosticAnswer(q.ID, "", &graph.Error{Kind: graph.KindClassification, Message: "bad label"})
		return s
	}
	s.FinalAnswer = &graph.FinalAnswer{ID: q.ID, Value: q.Question, Confidence: 1, Citations: []string{}}
	return s
}

func TestReadQuestions(t *testing.T) {
	in := `{"id":"rag_policy","question":"Return days?","format_hint":"int"}

{"id":"sql_top3","question":"Top 3 products?","format_hint":"list[{product:str, revenue:float}]"}
`
	qs, err := ReadQuestions(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadQuestions() err=%v", err)
	}
	if len(qs) != 2 || qs[1].ID != "sql_top3" || qs[0].FormatHint != "int" {
		t.Errorf("questions = %+v", qs)
	}

	_, err = ReadQuestions(strings.NewReader("{\"id\":\"a\",\"question\":\"q\"}\n{broken"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("bad line err = %v", err)
	}
	if _, err := ReadQuestions(strings.NewReader(`{"id":"a"}`)); err == nil {
		t.Error("empty question accepted")
	}
}

func TestRunKeepsInputOrder(t *testing.T) {
	qs := []graph.Question{
		{ID: "a", Question: "first"},
		{ID: "bb", Question: "fail"},
		{ID: "ccc", Question: "third"},
		{ID: "dddd", Question: "fourth"},
	}
	r := &slowRunner{}
	answers := Run(context.Background(), r, qs, 2, logging.Discard())

	if len(answers) != len(qs) {
		t.Fatalf("answers = %d", len(answers))
	}
	for i, a := range answers {
		if a.ID != qs[i].ID {
			t.Errorf("answers[%d].ID = %q, want %q", i, a.ID, qs[i].ID)
		}
	}
	if answers[1].ErrorKind != graph.KindClassification || answers[2].Value != "third" {
		t.Errorf("answers = %+v %+v", answers[1], answers[2])
	}
	if p := r.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	answers := []*graph.FinalAnswer{
		{ID: "a", Value: 14, Confidence: 1, Explanation: "policy", Citations: []string{"product_policy::chunk1"}},
		graph.DiagnosticAnswer("b", "SELECT 1", &graph.Error{Kind: graph.KindConstraint, Message: "bad range"}),
	}
	if err := WriteResults(&buf, answers); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["id"] != "b" || rec["final_answer"] != nil || rec["sql"] != "SELECT 1" {
		t.Errorf("record = %v", rec)
	}
	if c, ok := rec["citations"].([]any); !ok || len(c) != 0 {
		t.Errorf("citations = %#v", rec["citations"])
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		ok, err     bool
	}{
		{"s3://results/run1/out.jsonl", "results", "run1/out.jsonl", true, false},
		{"outputs_hybrid.jsonl", "", "", false, false},
		{"s3://results", "", "", false, true},
		{"s3:///key", "", "", false, true},
	}
	for _, tt := range tests {
		bucket, key, ok, err := ParseS3URL(tt.in)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok || (err != nil) != tt.err {
			t.Errorf("ParseS3URL(%q) = %q %q %v %v", tt.in, bucket, key, ok, err)
		}
	}
}

func TestOpenSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	sink, err := OpenSink(path, config.ObjectStoreConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Put(context.Background(), []byte("{}\n")); err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "{}\n" {
		t.Errorf("file = %q, %v", data, err)
	}

	if _, err := OpenSink("s3://bucket/key", config.ObjectStoreConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Error("object sink without credentials accepted")
	}
	s3, err := OpenSink("s3://bucket/out.jsonl", config.ObjectStoreConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	if err != nil || s3.String() != "s3://bucket/out.jsonl" {
		t.Errorf("object sink = %v, %v", s3, err)
	}
}

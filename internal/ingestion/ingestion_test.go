package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/calendar/v3"

	"github.com/abd2220/retail-copilot/internal/logging"
)

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("product_policy.md", "# Product Policy\n\n## Returns\n- Beverages unopened: 14 days.\n")
	write("kpi/definitions.txt", "AOV = revenue / orders")
	write("notes.docx", "ignored")
	write("scan.png", "not really an image")

	docs, err := LoadDir(root, Extractor{}, logging.Discard())
	if err != nil {
		t.Fatalf("LoadDir() err=%v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	names := map[string]Document{}
	for _, d := range docs {
		names[d.Name] = d
	}
	policy, ok := names["product_policy.md"]
	if !ok {
		t.Fatalf("missing product_policy.md in %v", names)
	}
	if policy.Title != "Product Policy" || policy.Source != "local" {
		t.Errorf("doc = %+v", policy)
	}
	if _, ok := names["kpi/definitions.txt"]; !ok {
		t.Errorf("nested doc should be named by relative path: %v", names)
	}

	chunks := Chunks(docs)
	found := false
	for _, c := range chunks {
		if c.ID == "product_policy.md::chunk0" && strings.Contains(c.Text, "14 days") {
			found = true
		}
	}
	if !found {
		t.Errorf("policy chunk missing from %+v", chunks)
	}
}

func TestExtractUnsupported(t *testing.T) {
	for _, path := range []string{"slides.pptx", "scan.png"} {
		if _, err := (Extractor{}).Extract(path); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Extract(%q) err=%v, want ErrUnsupported", path, err)
		}
	}
}

func TestEventsMarkdown(t *testing.T) {
	items := []*calendar.Event{
		{
			Summary:     "Summer Beverages 1997",
			Description: "Beverages and Condiments promotion.",
			Start:       &calendar.EventDateTime{Date: "1997-06-01"},
			End:         &calendar.EventDateTime{Date: "1997-07-01"},
		},
		{
			Summary: "Winter Classics 1997",
			Start:   &calendar.EventDateTime{DateTime: "1997-12-01T09:00:00Z"},
			End:     &calendar.EventDateTime{DateTime: "1997-12-31T18:00:00Z"},
		},
		{Summary: "broken", Start: &calendar.EventDateTime{Date: "soon"}, End: &calendar.EventDateTime{Date: "later"}},
	}
	md := EventsMarkdown(items)
	if !strings.Contains(md, "## Summer Beverages 1997\nDates: 1997-06-01 to 1997-06-30\nBeverages and Condiments promotion.") {
		t.Errorf("all-day event not rendered inclusively:\n%s", md)
	}
	if !strings.Contains(md, "## Winter Classics 1997\nDates: 1997-12-01 to 1997-12-31") {
		t.Errorf("timed event missing:\n%s", md)
	}
	if strings.Contains(md, "broken") {
		t.Errorf("unparseable event should be skipped:\n%s", md)
	}
}

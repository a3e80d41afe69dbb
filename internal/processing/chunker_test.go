package processing

import (
	"strings"
	"testing"
)

func TestChunkDocumentSections(t *testing.T) {
	doc := "# Product Policy\n\n## Returns\n- Perishables: 3-7 days.\n- Beverages unopened: 14 days.\n\n## Empty\n\n## Exchanges\nStore credit only.\n"
	chunks := ChunkDocument("product_policy.md", doc)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].ID != "product_policy.md::chunk0" || chunks[1].ID != "product_policy.md::chunk1" {
		t.Errorf("ids = %s, %s", chunks[0].ID, chunks[1].ID)
	}
	want := "Source: product_policy.md\nContext: Product Policy > Returns\nContent:\n- Perishables: 3-7 days.\n- Beverages unopened: 14 days."
	if chunks[0].Text != want {
		t.Errorf("chunk0 text = %q", chunks[0].Text)
	}
	if chunks[1].Source != "product_policy.md" {
		t.Errorf("source = %q", chunks[1].Source)
	}
}

func TestChunkDocumentListFallback(t *testing.T) {
	doc := "# Marketing Calendar 1997\n- Summer Beverages 1997: 1997-06-01 to 1997-06-30\n- Winter Classics 1997: 1997-12-01 to 1997-12-31\n"
	chunks := ChunkDocument("marketing_calendar.md", doc)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[1].Text, "- Winter Classics 1997: 1997-12-01 to 1997-12-31") {
		t.Errorf("chunk1 = %q", chunks[1].Text)
	}
	if !strings.Contains(chunks[0].Text, "Context: Marketing Calendar 1997") {
		t.Errorf("chunk0 = %q", chunks[0].Text)
	}
}

func TestChunkDocumentParagraphFallback(t *testing.T) {
	doc := "AOV is revenue divided by order count.\n\nGross margin uses a 70% cost approximation."
	chunks := ChunkDocument("kpi.txt", doc)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[1].Text != "Source: kpi.txt\nContent:\nGross margin uses a 70% cost approximation." {
		t.Errorf("chunk1 = %q", chunks[1].Text)
	}
}

func TestSplitLong(t *testing.T) {
	s := strings.Repeat("a", 2500)
	parts := splitLong(s, 1000, 200)
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	if len(parts[0]) != 1000 || len(parts[2]) != 900 {
		t.Errorf("part sizes %d, %d", len(parts[0]), len(parts[2]))
	}
}

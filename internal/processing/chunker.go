package processing

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunk is one retrievable unit of a document. ID is "<source>::chunk<N>" and
// is what answers cite.
type Chunk struct {
	ID     string
	Text   string
	Source string
}

var (
	sectionRe   = regexp.MustCompile(`(?m)^## `)
	paragraphRe = regexp.MustCompile(`\n{2,}`)
)

// ChunkDocument splits a document into chunks. Markdown "## " sections become
// one chunk each; documents without sections fall back to one chunk per "-"
// list item, then to paragraph chunks.
func ChunkDocument(source, content string) []Chunk {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var texts []string

	if sections := sectionRe.Split(content, -1); len(sections) > 1 {
		mainTitle := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sections[0]), "# "))
		for _, section := range sections[1:] {
			if strings.TrimSpace(section) == "" {
				continue
			}
			lines := strings.Split(section, "\n")
			title := strings.TrimSpace(lines[0])
			body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
			if body == "" {
				continue
			}
			texts = append(texts, fmt.Sprintf("Source: %s\nContext: %s > %s\nContent:\n%s", source, mainTitle, title, body))
		}
	} else if items := listItems(content); len(items) > 0 {
		lines := strings.Split(content, "\n")
		mainTitle := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "# "))
		for _, item := range items {
			texts = append(texts, fmt.Sprintf("Source: %s\nContext: %s\nContent:\n%s", source, mainTitle, item))
		}
	} else {
		for _, p := range ChunkText(content) {
			texts = append(texts, fmt.Sprintf("Source: %s\nContent:\n%s", source, p))
		}
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{ID: fmt.Sprintf("%s::chunk%d", source, i), Text: text, Source: source}
	}
	return chunks
}

func listItems(content string) []string {
	lines := strings.Split(content, "\n")
	var items []string
	for _, line := range lines[1:] {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "-") {
			items = append(items, line)
		}
	}
	return items
}

// ChunkText splits into paragraph chunks and limits size.
func ChunkText(text string) []string {
	paras := paragraphRe.Split(text, -1)
	var out []string
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// further split very long paragraphs into ~1000-char chunks with overlap
		out = append(out, splitLong(p, 1000, 200)...)
	}
	return out
}

func splitLong(s string, max, overlap int) []string {
	if len(s) <= max {
		return []string{s}
	}
	var res []string
	for i := 0; i < len(s); i += (max - overlap) {
		end := i + max
		if end > len(s) {
			end = len(s)
		}
		res = append(res, strings.TrimSpace(s[i:end]))
		if end == len(s) {
			break
		}
	}
	return res
}

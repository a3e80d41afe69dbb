package ingestion

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/abd2220/retail-copilot/internal/processing"
)

var allowedExt = []string{".pdf", ".txt", ".md", ".png", ".jpg", ".jpeg"}

// Document is extracted text plus where it came from.
type Document struct {
	Name       string // stable source id used in chunk ids
	Text       string
	Source     string // "local" or "calendar"
	Title      string
	ImportedAt time.Time
}

func LoadLocalFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, a := range allowedExt {
			if ext == a {
				out = append(out, path)
				break
			}
		}
		return nil
	})
	return out, err
}

// LoadDir extracts every supported file under root. Files that fail to
// extract are logged and skipped. Document names are paths relative to root.
func LoadDir(root string, x Extractor, logger *slog.Logger) ([]Document, error) {
	files, err := LoadLocalFiles(root)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(files))
	for _, f := range files {
		text, err := x.Extract(f)
		if err != nil {
			logger.Warn("skip file", "path", f, "error", err)
			continue
		}
		name, err := filepath.Rel(root, f)
		if err != nil {
			name = filepath.Base(f)
		}
		name = filepath.ToSlash(name)
		docs = append(docs, Document{
			Name:       name,
			Text:       text,
			Source:     "local",
			Title:      title(text, name),
			ImportedAt: time.Now().UTC(),
		})
	}
	return docs, nil
}

// Chunks splits documents into retrievable chunks, preserving document order.
func Chunks(docs []Document) []processing.Chunk {
	var out []processing.Chunk
	for _, d := range docs {
		out = append(out, processing.ChunkDocument(d.Name, d.Text)...)
	}
	return out
}

func title(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return fallback
}

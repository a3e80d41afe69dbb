package ingestion

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

func (x Extractor) ocrImage(path string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if len(x.Languages) > 0 {
		if err := client.SetLanguage(x.Languages...); err != nil {
			return "", fmt.Errorf("ocr language: %w", err)
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(text), nil
}

// ocrPDF renders pages to PNG with pdftoppm (poppler) and OCRs each one.
// Pages that fail are skipped.
func (x Extractor) ocrPDF(path string) (string, error) {
	dir, err := os.MkdirTemp("", "copilot-ocr")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if err := exec.Command("pdftoppm", "-png", path, prefix).Run(); err != nil {
		return "", fmt.Errorf("pdftoppm %s: %w", filepath.Base(path), err)
	}
	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	sort.Strings(pages)

	var parts []string
	for _, p := range pages {
		if text, err := x.ocrImage(p); err == nil && text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoText, filepath.Base(path))
	}
	return strings.Join(parts, "\n"), nil
}

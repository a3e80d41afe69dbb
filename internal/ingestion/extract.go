package ingestion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrNoText      = errors.New("no extractable text")
)

// Extractor turns supported files into plain text. With OCR off, images are
// unsupported and PDFs without a text layer yield ErrNoText.
type Extractor struct {
	OCR       bool
	Languages []string // tesseract language codes, e.g. "eng"
}

func (x Extractor) Extract(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case ".pdf":
		text, err := pdfText(path)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if !x.OCR {
			if err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: %s has no text layer", ErrNoText, filepath.Base(path))
		}
		return x.ocrPDF(path)
	case ".png", ".jpg", ".jpeg":
		if !x.OCR {
			return "", fmt.Errorf("%w: %s needs ocr", ErrUnsupported, ext)
		}
		return x.ocrImage(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// Package extract provides page-wise text extraction from uploaded documents.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts ordered page texts from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Pages reads the file at path and returns its text content as an ordered
// sequence of pages. Plain text files (.txt) are a single page; PDF files
// yield one entry per page, empty when the page has no extractable text.
// Returns an error if the file cannot be read, is corrupt, or has an
// unsupported extension.
func (e *Extractor) Pages(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.PagesFromBytes(content, ext)
}

// PagesFromBytes extracts page texts from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) PagesFromBytes(content []byte, ext string) ([]string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".txt":
		page, err := extractPlain(content)
		if err != nil {
			return nil, err
		}
		return []string{page}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

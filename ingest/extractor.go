// Package ingest converts document files to plain text for memory import.
//
// Extractors exist for plain text, markdown, PDF, and HTML. The recall
// agent's document import selects an extractor from the file extension.
package ingest

import (
	"path/filepath"
	"strings"
)

// Extractor converts raw file content to plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ForPath returns the extractor for a file path based on its extension.
// Unknown extensions fall back to plain text.
func ForPath(path string) Extractor {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "md", "markdown":
		return MarkdownExtractor{}
	case "pdf":
		return PDFExtractor{}
	case "html", "htm":
		return HTMLExtractor{}
	default:
		return PlainTextExtractor{}
	}
}

// PlainTextExtractor returns content as-is.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

package ingest

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// localURL anchors relative links during readability parsing; imported
// documents have no real origin.
var localURL, _ = url.Parse("file:///imported.html")

// Compile-time interface check.
var _ Extractor = HTMLExtractor{}

// HTMLExtractor extracts readable article text from HTML documents.
type HTMLExtractor struct{}

// Extract runs readability extraction and falls back to tag stripping
// when no article content is found.
func (HTMLExtractor) Extract(content []byte) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(content), localURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	return StripHTML(string(content)), nil
}

// StripHTML removes tags from HTML, keeping text content. Block-level
// closings become newlines so lines stay separable.
func StripHTML(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Compile-time interface check.
var _ Extractor = MarkdownExtractor{}

// MarkdownExtractor strips markdown formatting by walking the goldmark
// AST and collecting text content, one line per block.
type MarkdownExtractor struct{}

// Extract parses the markdown source and returns its plain text. Inline
// formatting (emphasis, links, code spans) is flattened; block boundaries
// become newlines.
func (MarkdownExtractor) Extract(content []byte) (string, error) {
	parser := goldmark.New().Parser()
	root := parser.Parse(text.NewReader(content))

	var b strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Separate blocks with a newline once their inline content is done.
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(content))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.FencedCodeBlock:
			writeCodeLines(&b, n, content)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			writeCodeLines(&b, n, content)
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			b.Write(t.URL(content))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}

	// Collapse runs of blank lines left by nested blocks.
	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n")), nil
}

func writeCodeLines(b *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	b.WriteByte('\n')
}

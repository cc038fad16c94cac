package ingest

import (
	"strings"
	"testing"
)

func TestForPath(t *testing.T) {
	cases := []struct {
		path string
		want Extractor
	}{
		{"notes.md", MarkdownExtractor{}},
		{"NOTES.MARKDOWN", MarkdownExtractor{}},
		{"paper.pdf", PDFExtractor{}},
		{"page.html", HTMLExtractor{}},
		{"page.htm", HTMLExtractor{}},
		{"notes.txt", PlainTextExtractor{}},
		{"no_extension", PlainTextExtractor{}},
		{"data.json", PlainTextExtractor{}},
	}
	for _, tc := range cases {
		if got := ForPath(tc.path); got != tc.want {
			t.Errorf("ForPath(%q) = %T, want %T", tc.path, got, tc.want)
		}
	}
}

func TestPlainTextExtract(t *testing.T) {
	got, err := PlainTextExtractor{}.Extract([]byte("hello\nworld"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello\nworld" {
		t.Errorf("Extract = %q", got)
	}
}

func TestMarkdownExtract(t *testing.T) {
	src := `# Pottery Notes

Emma **loves** pottery and [her class](https://example.com/class).

- wedging clay
- centering on the wheel

` + "```\nkiln temp: 1240C\n```\n"

	got, err := MarkdownExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Pottery Notes",
		"Emma loves pottery and her class.",
		"wedging clay",
		"centering on the wheel",
		"kiln temp: 1240C",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, formatting := range []string{"#", "**", "](", "```"} {
		if strings.Contains(got, formatting) {
			t.Errorf("formatting %q survived extraction:\n%s", formatting, got)
		}
	}
}

func TestMarkdownExtractBlankLineCollapse(t *testing.T) {
	src := "one\n\n\n\ntwo\n\n\nthree"
	got, err := MarkdownExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank-line runs not collapsed:\n%q", got)
	}
}

func TestHTMLExtractArticle(t *testing.T) {
	src := `<!DOCTYPE html>
<html><head><title>Pottery</title></head>
<body>
<nav>Home | About | Contact</nav>
<article>
<h1>Weekly pottery progress</h1>
<p>Emma finished glazing her first set of bowls this week.</p>
<p>Next session covers trimming techniques on the wheel.</p>
</article>
<footer>Copyright notice</footer>
</body></html>`

	got, err := HTMLExtractor{}.Extract([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "glazing her first set of bowls") {
		t.Errorf("article text missing:\n%s", got)
	}
	if strings.Contains(got, "<p>") || strings.Contains(got, "<article>") {
		t.Errorf("tags survived extraction:\n%s", got)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<div><p>first   line</p>\n<p>second line</p></div>")
	if !strings.Contains(got, "first line") || !strings.Contains(got, "second line") {
		t.Errorf("StripHTML = %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("tag characters survived: %q", got)
	}
}

func TestHTMLExtractFallback(t *testing.T) {
	// Not enough structure for readability; tag stripping still yields text.
	got, err := HTMLExtractor{}.Extract([]byte("<b>just bold text</b>"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "just bold text") {
		t.Errorf("fallback lost content: %q", got)
	}
}

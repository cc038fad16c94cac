package memora

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPromptStoreEmbeddedDefaults(t *testing.T) {
	s := NewPromptStore("")
	for _, name := range []string{"activity", "profile", "sufficiency", "synthesis", "refine_query"} {
		tmpl, err := s.Get(name)
		if err != nil {
			t.Fatalf("Get(%q) error: %v", name, err)
		}
		if tmpl == "" {
			t.Errorf("Get(%q) returned empty template", name)
		}
	}
}

func TestPromptStoreDiskOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "activity"), 0o755); err != nil {
		t.Fatal(err)
	}
	custom := "Custom activity prompt: {conversation_text}"
	if err := os.WriteFile(filepath.Join(dir, "activity", "prompt.txt"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewPromptStore(dir)
	got, err := s.Get("activity")
	if err != nil {
		t.Fatal(err)
	}
	if got != custom {
		t.Errorf("disk override not used, got %q", got)
	}

	// Names not on disk still fall back to the embedded set.
	if _, err := s.Get("profile"); err != nil {
		t.Errorf("embedded fallback failed: %v", err)
	}
}

func TestPromptStoreNotFound(t *testing.T) {
	s := NewPromptStore("")
	_, err := s.Get("no_such_template")
	var notFound *ErrTemplateNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Get() error = %v, want *ErrTemplateNotFound", err)
	}
	if notFound.Name != "no_such_template" {
		t.Errorf("Name = %q", notFound.Name)
	}
}

func TestPromptRender(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "greet"), 0o755); err != nil {
		t.Fatal(err)
	}
	tmpl := "Hello {name}, you have {count} items. Missing: {absent}. Literal {not-a-var}."
	if err := os.WriteFile(filepath.Join(dir, "greet", "prompt.txt"), []byte(tmpl), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewPromptStore(dir)
	out, err := s.Render("greet", map[string]string{"name": "Emma", "count": "3", "extra": "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello Emma, you have 3 items. Missing: . Literal {not-a-var}."
	if out != want {
		t.Errorf("Render = %q, want %q", out, want)
	}
}

func TestPromptCacheHit(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "once"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "once", "prompt.txt")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewPromptStore(dir)
	if _, err := s.Get("once"); err != nil {
		t.Fatal(err)
	}

	// The cache is write-once; a disk change must not leak through.
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("once")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v1" {
		t.Errorf("Get after rewrite = %q, want cached v1", got)
	}
}

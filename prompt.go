package memora

import (
	"context"
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

//go:embed prompts
var defaultPrompts embed.FS

// placeholderRe matches {name} placeholders in templates. Identifier-safe
// names only; literal braces around other text are left untouched.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// PromptStore loads named prompt templates from a prompts directory,
// caches them for process lifetime, and renders them by substituting
// {name} placeholders.
//
// On disk each template lives at <dir>/<name>/prompt.txt. When a template
// is absent from the directory, the embedded default for that name is
// used. Templates load lazily on first access; the cache is write-once
// per name and safe under concurrent reads.
type PromptStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// PromptOption configures a PromptStore.
type PromptOption func(*PromptStore)

// WithPromptLogger sets a structured logger. Unknown-placeholder warnings
// are emitted through it. If not set, no logs are emitted.
func WithPromptLogger(l *slog.Logger) PromptOption {
	return func(s *PromptStore) { s.logger = l }
}

// NewPromptStore creates a store rooted at dir. An empty dir serves only
// the embedded default templates.
func NewPromptStore(dir string, opts ...PromptOption) *PromptStore {
	s := &PromptStore{
		dir:    dir,
		logger: nopLogger,
		cache:  make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the template body for name, loading and caching it on first
// access. Fails with *ErrTemplateNotFound when neither the prompts
// directory nor the embedded defaults contain it.
func (s *PromptStore) Get(name string) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := s.load(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	// Another goroutine may have loaded it meanwhile; both loads read the
	// same immutable source, so either value is fine.
	s.cache[name] = tmpl
	s.mu.Unlock()
	return tmpl, nil
}

func (s *PromptStore) load(name string) (string, error) {
	if s.dir != "" {
		path := filepath.Join(s.dir, name, "prompt.txt")
		if data, err := os.ReadFile(path); err == nil {
			s.logger.Debug("prompt loaded from disk", "name", name, "path", path)
			return string(data), nil
		}
	}
	if data, err := defaultPrompts.ReadFile("prompts/" + name + "/prompt.txt"); err == nil {
		s.logger.Debug("prompt loaded from embedded defaults", "name", name)
		return string(data), nil
	}
	return "", &ErrTemplateNotFound{Name: name}
}

// Render loads the template and substitutes named placeholders with the
// given values. Placeholders present in the template but absent from vars
// render as empty string with a warning — never an error. Extra vars are
// ignored.
func (s *PromptStore) Render(name string, vars map[string]string) (string, error) {
	tmpl, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return s.renderTemplate(name, tmpl, vars), nil
}

func (s *PromptStore) renderTemplate(name, tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		s.logger.Warn("unknown placeholder in prompt template, rendering empty",
			"template", name, "placeholder", key)
		return ""
	})
}

// nopLogger discards all output. Used wherever a logger option was not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

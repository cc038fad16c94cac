// Package fs implements memora.Storage on a plain directory tree. Each
// category artifact is a markdown file at
// <base>/<agent_id>/<user_id>/<filename>, human-readable and editable.
// No vector index is kept; SaveEmbedding is a no-op.
package fs

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nevindra/memora"
)

// StoreOption configures a filesystem Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithFilenames maps category names to artifact filenames. Unmapped
// categories default to "<category>.md".
func WithFilenames(names map[string]string) StoreOption {
	return func(s *Store) {
		for k, v := range names {
			s.filenames[k] = v
		}
	}
}

// Store implements memora.Storage backed by a directory tree.
type Store struct {
	base      string
	filenames map[string]string
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ memora.Storage = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store rooted at base. The directory is created lazily on
// first write; Init creates it eagerly.
func New(base string, opts ...StoreOption) *Store {
	s := &Store{
		base:      base,
		filenames: make(map[string]string),
		logger:    nopLogger,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("fs: store opened", "base", base)
	return s
}

// Init creates the base directory.
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.base, 0o755); err != nil {
		return &memora.ErrStorageIO{Op: "init", Err: err}
	}
	return nil
}

// Close is a no-op; the store holds no open handles between calls.
func (s *Store) Close() error { return nil }

// lockFor returns the per-artifact mutex, creating it on first use.
// Writes against the same artifact serialize through it.
func (s *Store) lockFor(agentID, userID, category string) *sync.Mutex {
	key := agentID + "/" + userID + "/" + category
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// path resolves the artifact file path. Path components are sanitized so
// IDs cannot escape the base directory.
func (s *Store) path(agentID, userID, category string) string {
	name, ok := s.filenames[category]
	if !ok {
		name = category + ".md"
	}
	return filepath.Join(s.base, sanitize(agentID), sanitize(userID), sanitize(name))
}

// sanitize strips path separators and parent references from an ID.
func sanitize(id string) string {
	id = strings.ReplaceAll(id, "/", "_")
	id = strings.ReplaceAll(id, string(os.PathSeparator), "_")
	id = strings.ReplaceAll(id, "..", "_")
	return id
}

// Read returns the artifact content, or "" when the file does not exist.
func (s *Store) Read(ctx context.Context, agentID, userID, category string) (string, error) {
	start := time.Now()
	data, err := os.ReadFile(s.path(agentID, userID, category))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &memora.ErrStorageIO{Op: "read", Err: err}
	}
	s.logger.Debug("fs: read", "agent_id", agentID, "user_id", userID, "category", category,
		"bytes", len(data), "duration", time.Since(start))
	return string(data), nil
}

// Write replaces the artifact content, creating parent directories as
// needed. The write goes through a temp file and rename so a crash never
// leaves a half-written artifact.
func (s *Store) Write(ctx context.Context, agentID, userID, category, content string) error {
	l := s.lockFor(agentID, userID, category)
	l.Lock()
	defer l.Unlock()
	return s.writeLocked(agentID, userID, category, content)
}

func (s *Store) writeLocked(agentID, userID, category, content string) error {
	start := time.Now()
	p := s.path(agentID, userID, category)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &memora.ErrStorageIO{Op: "write", Err: err}
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return &memora.ErrStorageIO{Op: "write", Err: err}
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return &memora.ErrStorageIO{Op: "write", Err: err}
	}
	s.logger.Debug("fs: write", "agent_id", agentID, "user_id", userID, "category", category,
		"bytes", len(content), "duration", time.Since(start))
	return nil
}

// Append adds content to the artifact, separated from existing content by
// a blank line.
func (s *Store) Append(ctx context.Context, agentID, userID, category, content string) error {
	l := s.lockFor(agentID, userID, category)
	l.Lock()
	defer l.Unlock()

	existing, err := os.ReadFile(s.path(agentID, userID, category))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &memora.ErrStorageIO{Op: "append", Err: err}
	}
	current := strings.TrimRight(string(existing), "\n")
	if current == "" {
		return s.writeLocked(agentID, userID, category, content)
	}
	return s.writeLocked(agentID, userID, category, current+"\n\n"+content)
}

// Exists reports whether the artifact file exists with non-empty content.
func (s *Store) Exists(ctx context.Context, agentID, userID, category string) (bool, error) {
	info, err := os.Stat(s.path(agentID, userID, category))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &memora.ErrStorageIO{Op: "stat", Err: err}
	}
	return info.Size() > 0, nil
}

// ListCategories returns category names with a non-empty artifact file
// for the memory space, sorted.
func (s *Store) ListCategories(ctx context.Context, agentID, userID string) ([]string, error) {
	dir := filepath.Join(s.base, sanitize(agentID), sanitize(userID))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "list categories", Err: err}
	}

	// Invert the filename map so custom filenames resolve back to their
	// category name.
	byFile := make(map[string]string, len(s.filenames))
	for cat, name := range s.filenames {
		byFile[name] = cat
	}

	var cats []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if cat, ok := byFile[e.Name()]; ok {
			cats = append(cats, cat)
		} else {
			cats = append(cats, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		}
	}
	sort.Strings(cats)
	return cats, nil
}

// ListUsers returns user IDs with a directory under the agent, sorted.
func (s *Store) ListUsers(ctx context.Context, agentID string) ([]string, error) {
	dir := filepath.Join(s.base, sanitize(agentID))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "list users", Err: err}
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

// Clear deletes the named artifact, or the whole memory space when
// category is "". Returns the number of artifacts removed.
func (s *Store) Clear(ctx context.Context, agentID, userID, category string) (int, error) {
	start := time.Now()
	if category != "" {
		err := os.Remove(s.path(agentID, userID, category))
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		if err != nil {
			return 0, &memora.ErrStorageIO{Op: "clear", Err: err}
		}
		s.logger.Debug("fs: clear", "agent_id", agentID, "user_id", userID, "category", category)
		return 1, nil
	}

	dir := filepath.Join(s.base, sanitize(agentID), sanitize(userID))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &memora.ErrStorageIO{Op: "clear", Err: err}
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && !strings.HasSuffix(e.Name(), ".tmp") {
			count++
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, &memora.ErrStorageIO{Op: "clear", Err: err}
	}
	s.logger.Debug("fs: clear all", "agent_id", agentID, "user_id", userID,
		"removed", count, "duration", time.Since(start))
	return count, nil
}

// SaveEmbedding is a no-op; the filesystem backend keeps no vector index
// and recall computes lexical scores from file content directly.
func (s *Store) SaveEmbedding(ctx context.Context, agentID, userID, category string, embedding []float32) error {
	return nil
}

// Base returns the root directory, useful for diagnostics.
func (s *Store) Base() string { return s.base }

// ArtifactPath exposes the resolved path of one artifact for callers that
// want to show or watch the underlying file.
func (s *Store) ArtifactPath(agentID, userID, category string) string {
	return s.path(agentID, userID, category)
}

// Package sqlite implements memora.Storage using pure-Go SQLite
// with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/nevindra/memora"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements memora.Storage backed by a local SQLite file.
// Embeddings are stored as JSON text and vector search is done
// in-process using brute-force cosine similarity.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ memora.Storage = (*Store)(nil)
var _ memora.VectorSearcher = (*Store)(nil)
var _ memora.HistoryStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS artifacts (
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (agent_id, user_id, category)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return &memora.ErrStorageIO{Op: "init", Err: err}
		}
	}

	// Indexes on frequently queried columns.
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_artifacts_agent ON artifacts(agent_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_history_space ON artifact_history(agent_id, user_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

// Read returns the artifact content, or "" when no row exists.
func (s *Store) Read(ctx context.Context, agentID, userID, category string) (string, error) {
	start := time.Now()
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM artifacts WHERE agent_id = ? AND user_id = ? AND category = ?`,
		agentID, userID, category,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		s.logger.Error("sqlite: read failed", "category", category, "error", err)
		return "", &memora.ErrStorageIO{Op: "read", Err: err}
	}
	s.logger.Debug("sqlite: read ok", "agent_id", agentID, "user_id", userID,
		"category", category, "bytes", len(content), "duration", time.Since(start))
	return content, nil
}

// Write replaces the artifact content, creating the row if missing.
// Any stored embedding is invalidated since it no longer matches the
// content.
func (s *Store) Write(ctx context.Context, agentID, userID, category, content string) error {
	start := time.Now()
	now := time.Now().Unix()

	res, err := s.db.ExecContext(ctx,
		`UPDATE artifacts SET content = ?, embedding = NULL, updated_at = ?
		 WHERE agent_id = ? AND user_id = ? AND category = ?`,
		content, now, agentID, userID, category,
	)
	if err != nil {
		return &memora.ErrStorageIO{Op: "write", Err: err}
	}
	n, _ := res.RowsAffected()
	action := memora.HistoryUpdate
	if n == 0 {
		action = memora.HistoryCreate
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO artifacts (agent_id, user_id, category, content, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			agentID, userID, category, content, now, now,
		)
		if err != nil {
			return &memora.ErrStorageIO{Op: "write", Err: err}
		}
	}
	s.recordHistory(ctx, agentID, userID, category, action)
	s.logger.Debug("sqlite: write ok", "agent_id", agentID, "user_id", userID,
		"category", category, "bytes", len(content), "duration", time.Since(start))
	return nil
}

// Append adds content to the artifact, separated by a blank line. The
// read-modify-write runs in a transaction; the single-connection pool
// serializes concurrent appenders.
func (s *Store) Append(ctx context.Context, agentID, userID, category, content string) error {
	start := time.Now()
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &memora.ErrStorageIO{Op: "append", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT content FROM artifacts WHERE agent_id = ? AND user_id = ? AND category = ?`,
		agentID, userID, category,
	).Scan(&existing)

	action := memora.HistoryUpdate
	switch {
	case err == sql.ErrNoRows:
		action = memora.HistoryCreate
		_, err = tx.ExecContext(ctx,
			`INSERT INTO artifacts (agent_id, user_id, category, content, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			agentID, userID, category, content, now, now,
		)
	case err != nil:
		return &memora.ErrStorageIO{Op: "append", Err: err}
	default:
		merged := existing
		if merged != "" {
			merged += "\n\n"
		}
		merged += content
		_, err = tx.ExecContext(ctx,
			`UPDATE artifacts SET content = ?, embedding = NULL, updated_at = ?
			 WHERE agent_id = ? AND user_id = ? AND category = ?`,
			merged, now, agentID, userID, category,
		)
	}
	if err != nil {
		return &memora.ErrStorageIO{Op: "append", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &memora.ErrStorageIO{Op: "append", Err: err}
	}
	s.recordHistory(ctx, agentID, userID, category, action)
	s.logger.Debug("sqlite: append ok", "agent_id", agentID, "user_id", userID,
		"category", category, "bytes", len(content), "duration", time.Since(start))
	return nil
}

// Exists reports whether the artifact row exists with non-empty content.
func (s *Store) Exists(ctx context.Context, agentID, userID, category string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM artifacts
		 WHERE agent_id = ? AND user_id = ? AND category = ? AND length(content) > 0`,
		agentID, userID, category,
	).Scan(&n)
	if err != nil {
		return false, &memora.ErrStorageIO{Op: "stat", Err: err}
	}
	return n > 0, nil
}

// ListCategories returns categories with non-empty artifacts, sorted.
func (s *Store) ListCategories(ctx context.Context, agentID, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category FROM artifacts
		 WHERE agent_id = ? AND user_id = ? AND length(content) > 0
		 ORDER BY category`,
		agentID, userID,
	)
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "list categories", Err: err}
	}
	defer rows.Close()

	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, &memora.ErrStorageIO{Op: "list categories", Err: err}
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ListUsers returns distinct user IDs stored under the agent, sorted.
func (s *Store) ListUsers(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM artifacts WHERE agent_id = ? ORDER BY user_id`,
		agentID,
	)
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "list users", Err: err}
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, &memora.ErrStorageIO{Op: "list users", Err: err}
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Clear deletes the named artifact, or every artifact in the memory space
// when category is "". Returns the number of rows deleted.
func (s *Store) Clear(ctx context.Context, agentID, userID, category string) (int, error) {
	start := time.Now()
	var res sql.Result
	var err error
	if category != "" {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM artifacts WHERE agent_id = ? AND user_id = ? AND category = ?`,
			agentID, userID, category,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM artifacts WHERE agent_id = ? AND user_id = ?`,
			agentID, userID,
		)
	}
	if err != nil {
		return 0, &memora.ErrStorageIO{Op: "clear", Err: err}
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.recordHistory(ctx, agentID, userID, category, memora.HistoryDelete)
	}
	s.logger.Debug("sqlite: clear ok", "agent_id", agentID, "user_id", userID,
		"category", category, "deleted", n, "duration", time.Since(start))
	return int(n), nil
}

// SaveEmbedding stores the embedding for an existing artifact as JSON.
// Missing artifacts are ignored.
func (s *Store) SaveEmbedding(ctx context.Context, agentID, userID, category string, embedding []float32) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE artifacts SET embedding = ? WHERE agent_id = ? AND user_id = ? AND category = ?`,
		serializeEmbedding(embedding), agentID, userID, category,
	)
	if err != nil {
		return &memora.ErrStorageIO{Op: "save embedding", Err: err}
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.recordHistory(ctx, agentID, userID, category, memora.HistoryEmbed)
	}
	s.logger.Debug("sqlite: save embedding ok", "agent_id", agentID, "user_id", userID,
		"category", category, "dim", len(embedding), "duration", time.Since(start))
	return nil
}

// SearchByVector performs brute-force cosine similarity search over stored
// artifact embeddings. Empty agentID or category means no filter.
func (s *Store) SearchByVector(ctx context.Context, agentID, category string, embedding []float32, topK int, threshold float32) ([]memora.VectorHit, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search by vector", "top_k", topK, "embedding_dim", len(embedding))

	query := `SELECT agent_id, user_id, category, content, embedding
		FROM artifacts WHERE embedding IS NOT NULL`
	var args []any
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "vector search", Err: err}
	}
	defer rows.Close()

	var hits []memora.VectorHit
	scanned := 0
	for rows.Next() {
		var h memora.VectorHit
		var embJSON string
		if err := rows.Scan(&h.AgentID, &h.UserID, &h.Category, &h.Content, &embJSON); err != nil {
			return nil, &memora.ErrStorageIO{Op: "vector search", Err: err}
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		h.Score = cosineSimilarity(embedding, stored)
		if h.Score < threshold {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &memora.ErrStorageIO{Op: "vector search", Err: err}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	s.logger.Debug("sqlite: search by vector ok", "scanned", scanned,
		"returned", len(hits), "duration", time.Since(start))
	return hits, nil
}

// History returns the most recent mutation log entries for a memory
// space, newest first. Empty userID means all users under the agent.
func (s *Store) History(ctx context.Context, agentID, userID string, limit int) ([]memora.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT agent_id, user_id, category, action, created_at
		FROM artifact_history WHERE agent_id = ?`
	args := []any{agentID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "history", Err: err}
	}
	defer rows.Close()

	var entries []memora.HistoryEntry
	for rows.Next() {
		var e memora.HistoryEntry
		var action string
		if err := rows.Scan(&e.AgentID, &e.UserID, &e.Category, &action, &e.CreatedAt); err != nil {
			return nil, &memora.ErrStorageIO{Op: "history", Err: err}
		}
		e.Action = memora.HistoryAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// recordHistory appends a mutation log row. Best-effort: history is a
// diagnostic aid and never fails the operation it records.
func (s *Store) recordHistory(ctx context.Context, agentID, userID, category string, action memora.HistoryAction) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifact_history (agent_id, user_id, category, action, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		agentID, userID, category, string(action), time.Now().Unix(),
	)
	if err != nil {
		s.logger.Warn("sqlite: record history failed", "category", category, "error", err)
	}
}

// DB returns the underlying *sql.DB for diagnostics and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

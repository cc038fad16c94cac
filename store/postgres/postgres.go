// Package postgres implements memora.Storage using PostgreSQL with
// pgvector for native vector similarity search.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/memora"
)

// Store implements memora.Storage backed by PostgreSQL with pgvector.
// Vector search uses HNSW indexes with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// better index optimization and catching dimension mismatches at insert time.
// Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate list
// size). Higher values improve recall at the cost of latency. Default:
// pgvector's 40. Applied during Init().
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

var _ memora.Storage = (*Store)(nil)
var _ memora.VectorSearcher = (*Store)(nil)
var _ memora.HistoryStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all required tables, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS artifacts (
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding %s,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (agent_id, user_id, category)
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS artifacts_agent_idx ON artifacts(agent_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS artifacts_embedding_idx ON artifacts USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),

		`CREATE TABLE IF NOT EXISTS artifact_history (
			id BIGSERIAL PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS artifact_history_space_idx ON artifact_history(agent_id, user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &memora.ErrStorageIO{Op: "init", Err: err}
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return &memora.ErrStorageIO{Op: "init", Err: err}
		}
	}

	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// Read returns the artifact content, or "" when no row exists.
func (s *Store) Read(ctx context.Context, agentID, userID, category string) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM artifacts WHERE agent_id = $1 AND user_id = $2 AND category = $3`,
		agentID, userID, category,
	).Scan(&content)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &memora.ErrStorageIO{Op: "read", Err: err}
	}
	return content, nil
}

// Write replaces the artifact content, creating the row if missing. The
// stored embedding is nulled since it no longer matches the content.
func (s *Store) Write(ctx context.Context, agentID, userID, category, content string) error {
	now := time.Now().Unix()
	// xmax = 0 distinguishes a fresh insert from an ON CONFLICT update.
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO artifacts (agent_id, user_id, category, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (agent_id, user_id, category) DO UPDATE SET
		   content = EXCLUDED.content,
		   embedding = NULL,
		   updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		agentID, userID, category, content, now).Scan(&inserted)
	if err != nil {
		return &memora.ErrStorageIO{Op: "write", Err: err}
	}
	action := memora.HistoryUpdate
	if inserted {
		action = memora.HistoryCreate
	}
	s.recordHistory(ctx, agentID, userID, category, action)
	return nil
}

// Append adds content to the artifact, separated by a blank line. The
// concatenation runs server-side in one statement so concurrent appenders
// never lose writes.
func (s *Store) Append(ctx context.Context, agentID, userID, category, content string) error {
	now := time.Now().Unix()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (agent_id, user_id, category, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (agent_id, user_id, category) DO UPDATE SET
		   content = CASE WHEN artifacts.content = '' THEN EXCLUDED.content
		                  ELSE artifacts.content || E'\n\n' || EXCLUDED.content END,
		   embedding = NULL,
		   updated_at = EXCLUDED.updated_at`,
		agentID, userID, category, content, now)
	if err != nil {
		return &memora.ErrStorageIO{Op: "append", Err: err}
	}
	s.recordHistory(ctx, agentID, userID, category, memora.HistoryUpdate)
	return nil
}

// Exists reports whether the artifact row exists with non-empty content.
func (s *Store) Exists(ctx context.Context, agentID, userID, category string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM artifacts
		 WHERE agent_id = $1 AND user_id = $2 AND category = $3 AND length(content) > 0`,
		agentID, userID, category,
	).Scan(&n)
	if err != nil {
		return false, &memora.ErrStorageIO{Op: "stat", Err: err}
	}
	return n > 0, nil
}

// ListCategories returns categories with non-empty artifacts, sorted.
func (s *Store) ListCategories(ctx context.Context, agentID, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT category FROM artifacts
		 WHERE agent_id = $1 AND user_id = $2 AND length(content) > 0
		 ORDER BY category`,
		agentID, userID)
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
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM artifacts WHERE agent_id = $1 ORDER BY user_id`,
		agentID)
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
	var tag pgconn.CommandTag
	var err error
	if category != "" {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM artifacts WHERE agent_id = $1 AND user_id = $2 AND category = $3`,
			agentID, userID, category)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM artifacts WHERE agent_id = $1 AND user_id = $2`,
			agentID, userID)
	}
	if err != nil {
		return 0, &memora.ErrStorageIO{Op: "clear", Err: err}
	}
	n := tag.RowsAffected()
	if n > 0 {
		s.recordHistory(ctx, agentID, userID, category, memora.HistoryDelete)
	}
	return int(n), nil
}

// SaveEmbedding stores the embedding for an existing artifact. Missing
// artifacts are ignored.
func (s *Store) SaveEmbedding(ctx context.Context, agentID, userID, category string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE artifacts SET embedding = $4::vector
		 WHERE agent_id = $1 AND user_id = $2 AND category = $3`,
		agentID, userID, category, serializeEmbedding(embedding))
	if err != nil {
		return &memora.ErrStorageIO{Op: "save embedding", Err: err}
	}
	if tag.RowsAffected() > 0 {
		s.recordHistory(ctx, agentID, userID, category, memora.HistoryEmbed)
	}
	return nil
}

// SearchByVector performs cosine similarity search over stored artifact
// embeddings using the HNSW index. Empty agentID or category means no
// filter on that column.
func (s *Store) SearchByVector(ctx context.Context, agentID, category string, embedding []float32, topK int, threshold float32) ([]memora.VectorHit, error) {
	if topK <= 0 {
		topK = 10
	}
	embStr := serializeEmbedding(embedding)

	query := `SELECT agent_id, user_id, category, content,
	        1 - (embedding <=> $1::vector) AS score
	 FROM artifacts
	 WHERE embedding IS NOT NULL`
	args := []any{embStr}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &memora.ErrStorageIO{Op: "vector search", Err: err}
	}
	defer rows.Close()

	var hits []memora.VectorHit
	for rows.Next() {
		var h memora.VectorHit
		var score float64
		if err := rows.Scan(&h.AgentID, &h.UserID, &h.Category, &h.Content, &score); err != nil {
			return nil, &memora.ErrStorageIO{Op: "vector search", Err: err}
		}
		h.Score = float32(score)
		if h.Score < threshold {
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// History returns the most recent mutation log entries for a memory
// space, newest first. Empty userID means all users under the agent.
func (s *Store) History(ctx context.Context, agentID, userID string, limit int) ([]memora.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT agent_id, user_id, category, action, created_at
		FROM artifact_history WHERE agent_id = $1`
	args := []any{agentID}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
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
	_, _ = s.pool.Exec(ctx,
		`INSERT INTO artifact_history (agent_id, user_id, category, action, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		agentID, userID, category, string(action), time.Now().Unix())
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

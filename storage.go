package memora

import "context"

// Storage abstracts category artifact persistence. The unit of isolation
// is the (agentID, userID) pair; each pair owns an independent set of
// category artifacts addressed by category name.
//
// Read returns "" for a missing artifact — absence is not an error.
// Writes against the same (agentID, userID, category) must be serialized
// by the implementation; reads may run concurrently.
type Storage interface {
	// Read returns the artifact content, or "" if it does not exist.
	Read(ctx context.Context, agentID, userID, category string) (string, error)
	// Write replaces the artifact content, creating it if missing.
	Write(ctx context.Context, agentID, userID, category, content string) error
	// Append atomically appends to the artifact. Equivalent to Write when
	// the artifact is empty or missing.
	Append(ctx context.Context, agentID, userID, category, content string) error
	// Exists reports whether the artifact exists with non-empty content.
	Exists(ctx context.Context, agentID, userID, category string) (bool, error)
	// ListCategories returns categories with a non-empty artifact.
	ListCategories(ctx context.Context, agentID, userID string) ([]string, error)
	// ListUsers returns user IDs with any artifact under the agent.
	ListUsers(ctx context.Context, agentID string) ([]string, error)
	// Clear deletes the named artifact, or every artifact in the memory
	// space when category is "". Returns the number deleted.
	Clear(ctx context.Context, agentID, userID, category string) (int, error)
	// SaveEmbedding records the embedding for the artifact's current
	// content. Idempotent; backends without vector support may no-op.
	SaveEmbedding(ctx context.Context, agentID, userID, category string, embedding []float32) error

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
}

// VectorHit is one match from VectorSearcher.SearchByVector.
type VectorHit struct {
	AgentID  string
	UserID   string
	Category string
	Content  string
	Score    float32
}

// VectorSearcher is an optional Storage capability for top-k cosine
// similarity search over stored artifact embeddings. DB-backed storages
// implement it; callers discover it via type assertion.
type VectorSearcher interface {
	// SearchByVector returns up to topK artifacts with cosine similarity
	// >= threshold, sorted by score descending. Empty agentID or category
	// means no filter on that column.
	SearchByVector(ctx context.Context, agentID, category string, embedding []float32, topK int, threshold float32) ([]VectorHit, error)
}

// HistoryAction is a recorded storage mutation kind.
type HistoryAction string

const (
	HistoryCreate HistoryAction = "CREATE"
	HistoryUpdate HistoryAction = "UPDATE"
	HistoryDelete HistoryAction = "DELETE"
	HistoryEmbed  HistoryAction = "EMBED"
)

// HistoryEntry is one row of a backend's mutation log.
type HistoryEntry struct {
	AgentID   string
	UserID    string
	Category  string
	Action    HistoryAction
	CreatedAt int64
}

// HistoryStore is an optional Storage capability exposing the mutation
// history log kept by DB-backed storages.
type HistoryStore interface {
	History(ctx context.Context, agentID, userID string, limit int) ([]HistoryEntry, error)
}

// Package memora is a long-term memory engine for conversational agents.
//
// Given a transcript of a user/assistant dialogue, it derives durable
// memories organized into semantic categories (profile, event, reminder,
// interests, study, important_event, plus a per-session activity summary),
// persists them as category artifacts keyed by (agent, user), indexes them
// for retrieval, and answers questions by combining category-scoped recall
// with iterative grounded generation.
//
// # Quick Start
//
//	provider := openaicompat.NewProvider(apiKey, "gpt-4o", "https://api.openai.com/v1")
//	embedding := openaicompat.NewEmbedder(apiKey, "text-embedding-3-small", "https://api.openai.com/v1", 1536)
//	storage := fs.New("./memory")
//	prompts := memora.NewPromptStore("./prompts")
//
//	orch := memora.NewOrchestrator(provider, storage, prompts,
//		memora.WithEmbedding(embedding))
//
//	report, err := orch.Ingest(ctx, "assistant", "alice", []memora.MemoryMessage{
//		{Role: "user", Content: "I'm Alex, a product manager learning Rust"},
//		{Role: "assistant", Content: "Nice! Rust has great memory safety guarantees."},
//	}, memora.IngestOptions{})
//
//	recall := memora.NewRecallAgent(storage, memora.WithRecallEmbedding(embedding))
//	results, err := recall.Search(ctx, memora.SearchRequest{
//		AgentID: "assistant", UserID: "alice", Query: "what is alice learning?",
//	})
//
//	response := memora.NewResponseAgent(provider, recall, storage)
//	answer, err := response.Answer(ctx, memora.AnswerRequest{
//		AgentID:  "assistant",
//		Question: "What does Alice do for work?",
//	})
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider] — LLM backend (chat completion, tool calling)
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Storage] — category artifact persistence per (agent_id, user_id)
//   - [VectorSearcher] — optional Storage capability for top-k cosine search
//   - [Tool] — pluggable capability for the response agent's tool mode
//
// # Included Implementations
//
// Storage: store/fs (file tree), store/sqlite (local, brute-force cosine),
// store/postgres (pgvector). Providers: provider/openaicompat.
// Observability: observer (OpenTelemetry wrappers).
package memora

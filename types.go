package memora

import "encoding/json"

// --- Conversation input ---

// MemoryMessage is one turn of a conversation to be ingested.
// Role is free-form (often a display name, or "user"/"assistant").
type MemoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ImageCaption optionally describes an image attached to this turn.
	// Prepended to Content when the transcript is formatted.
	ImageCaption string `json:"image_caption,omitempty"`
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// --- Ingestion ---

// IngestOptions carries optional per-ingestion parameters.
type IngestOptions struct {
	// SessionDate is an ISO date label for the session (defaults to today).
	SessionDate string
	// CharacterName labels the user in prompts (defaults to the user ID).
	CharacterName string
}

// AgentOutcome records one category agent's result within an ingestion.
type AgentOutcome struct {
	Category     string `json:"category"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	OutputLength int    `json:"output_length"`
}

// IngestionReport is the per-agent outcome bundle returned by one
// Orchestrator.Ingest call.
type IngestionReport struct {
	RunID          string         `json:"run_id"`
	Outcomes       []AgentOutcome `json:"outcomes"`
	EmbeddingCount int            `json:"embedding_count"`
	CompletedAt    int64          `json:"completed_at"`
	DurationMillis int64          `json:"duration_ms"`
}

// Succeeded reports whether every agent completed without error.
func (r IngestionReport) Succeeded() bool {
	for _, o := range r.Outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}

// --- Retrieval ---

// RelevanceTier buckets a combined score for display.
type RelevanceTier string

const (
	TierHigh   RelevanceTier = "high"   // combined >= 0.7
	TierMedium RelevanceTier = "medium" // combined >= 0.4
	TierLow    RelevanceTier = "low"
)

// SearchResult is one scored snippet from a recall search.
// All scores are in [0, 1].
type SearchResult struct {
	Category      string        `json:"category"`
	UserID        string        `json:"user_id"`
	LineIndex     int           `json:"line_index"`
	Content       string        `json:"content"`
	Semantic      float64       `json:"semantic_score"`
	BM25          float64       `json:"bm25_score"`
	String        float64       `json:"string_score"`
	Combined      float64       `json:"combined_score"`
	ExactMatch    bool          `json:"exact_match"`
	MethodsUsed   []string      `json:"methods_used"`
	RelevanceTier RelevanceTier `json:"relevance_tier"`
}

// SimilarResult is a SearchResult with lexical analysis attached,
// returned by RecallAgent.FindSimilar.
type SimilarResult struct {
	SearchResult
	CommonWords       []string `json:"common_words"`
	JaccardSimilarity float64  `json:"jaccard_similarity"`
	LengthRatio       float64  `json:"length_ratio"`
}

// ImportReport records the outcome of one file import.
type ImportReport struct {
	Path     string `json:"path"`
	Category string `json:"category"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Bytes    int    `json:"bytes"`
	// Stopped is set when a cooperative stop interrupted a directory
	// import before this file was processed.
	Stopped bool `json:"stopped,omitempty"`
}

// --- Question answering ---

// SufficiencyVerdict is the structured LLM judgment on whether retrieved
// context suffices to answer a question.
type SufficiencyVerdict struct {
	Sufficient  bool    `json:"sufficient"`
	MissingInfo string  `json:"missing_info"`
	Confidence  float64 `json:"confidence"`
}

// IterationTrace records one pass of the response agent's retrieval loop.
type IterationTrace struct {
	Query      string             `json:"query"`
	Retrieved  int                `json:"retrieved"`
	Verdict    SufficiencyVerdict `json:"verdict"`
	VerdictRaw string             `json:"verdict_raw,omitempty"`
	Note       string             `json:"note,omitempty"`
}

// AnswerResult is the outcome of one ResponseAgent.Answer call.
type AnswerResult struct {
	Answer         string           `json:"answer"`
	Reasoning      string           `json:"reasoning,omitempty"`
	IterationsUsed int              `json:"iterations_used"`
	Trace          []IterationTrace `json:"trace"`
	Retrieved      []SearchResult   `json:"retrieved"`
	Usage          Usage            `json:"usage"`
}

// ToolCallRecord reports one tool dispatch executed in tool-calling mode.
type ToolCallRecord struct {
	Name   string `json:"name"`
	Args   string `json:"args"`
	Result string `json:"result"`
}

// ToolAnswerResult is the outcome of ResponseAgent.AnswerWithTools.
type ToolAnswerResult struct {
	Answer    string           `json:"answer"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
	Turns     int              `json:"turns"`
	Usage     Usage            `json:"usage"`
}

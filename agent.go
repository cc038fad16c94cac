package memora

import (
	"context"
	"log/slog"
	"strings"
)

// CategoryAgent encapsulates one category's read/write cycle: read the
// current artifact, compose the category prompt, call the LLM, persist the
// output, and trigger embedding generation. One instance is constructed
// per ingestion request; instances hold no cross-request state.
type CategoryAgent struct {
	config   CategoryConfig
	provider Provider
	storage  Storage
	prompts  *PromptStore
	embed    *EmbedCache // nil disables embedding
	logger   *slog.Logger
}

// NewCategoryAgent creates an agent for the given category config.
// embed may be nil; embedding is then skipped entirely.
func NewCategoryAgent(config CategoryConfig, provider Provider, storage Storage, prompts *PromptStore, embed *EmbedCache, logger *slog.Logger) *CategoryAgent {
	if logger == nil {
		logger = nopLogger
	}
	return &CategoryAgent{
		config:   config,
		provider: provider,
		storage:  storage,
		prompts:  prompts,
		embed:    embed,
		logger:   logger,
	}
}

// Config returns the agent's category config.
func (a *CategoryAgent) Config() CategoryConfig { return a.config }

// Process runs one update cycle for this category.
//
// inputContent is the activity summary (or, for the root agent, the
// formatted raw conversation). deps maps upstream category names to the
// content they produced earlier in the same ingestion; each becomes a
// template variable of the same name.
//
// Returns the produced text and whether an embedding was stored. LLM
// failures return *ErrAgentGeneration; storage failures return
// *ErrStorageIO. Embedding failures are logged and swallowed.
func (a *CategoryAgent) Process(ctx context.Context, agentID, userID, characterName, sessionDate, inputContent string, deps map[string]string) (string, bool, error) {
	current, err := a.storage.Read(ctx, agentID, userID, a.config.Name)
	if err != nil {
		return "", false, err
	}

	vars := map[string]string{
		"character_name": characterName,
		"input_content":  inputContent,
		"current_memory": current,
		"session_date":   sessionDate,
	}
	for dep, content := range deps {
		vars[dep] = content
	}

	prompt, err := a.prompts.Render(a.config.PromptTemplate, vars)
	if err != nil {
		return "", false, err
	}

	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
	if err != nil {
		return "", false, &ErrAgentGeneration{Category: a.config.Name, Err: err}
	}

	produced := strings.TrimSpace(resp.Content)
	if produced == "" {
		// Nothing to persist; the artifact (if any) stays as-is.
		a.logger.Debug("agent produced empty output", "category", a.config.Name, "user", userID)
		return "", false, nil
	}

	if a.config.UpdateMode == UpdateAppend {
		err = a.storage.Append(ctx, agentID, userID, a.config.Name, produced+"\n")
	} else {
		err = a.storage.Write(ctx, agentID, userID, a.config.Name, produced)
	}
	if err != nil {
		return "", false, err
	}

	embedded := a.generateEmbedding(ctx, agentID, userID)
	return produced, embedded, nil
}

// generateEmbedding re-embeds the artifact's full persisted content and
// stores the vector. Failure never fails the write path.
func (a *CategoryAgent) generateEmbedding(ctx context.Context, agentID, userID string) bool {
	if a.embed == nil {
		return false
	}
	content, err := a.storage.Read(ctx, agentID, userID, a.config.Name)
	if err != nil || strings.TrimSpace(content) == "" {
		return false
	}
	vec, err := a.embed.GetOrCompute(ctx, content)
	if err != nil {
		a.logger.Warn("embedding generation failed, content persisted without vector",
			"category", a.config.Name, "user", userID, "error", err)
		return false
	}
	if err := a.storage.SaveEmbedding(ctx, agentID, userID, a.config.Name, vec); err != nil {
		a.logger.Warn("embedding save failed", "category", a.config.Name, "user", userID, "error", err)
		return false
	}
	return true
}

package memora

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// defaultToolTurns bounds the tool-calling conversation when the caller
// passes 0.
const defaultToolTurns = 6

// MemoryTools exposes stored memories to the LLM as callable tools:
// free-form search, profile lookup, event search, and user listing.
type MemoryTools struct {
	recall  *RecallAgent
	storage Storage
	agentID string
}

// NewMemoryTools creates a tool set scoped to one memory agent.
func NewMemoryTools(recall *RecallAgent, storage Storage, agentID string) *MemoryTools {
	return &MemoryTools{recall: recall, storage: storage, agentID: agentID}
}

// Definitions returns the JSON Schema definitions for all memory tools.
func (m *MemoryTools) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "answer_question",
			Description: "Search a user's stored memories across all categories. Returns scored snippets.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "string", "description": "User whose memories to search"},
					"query": {"type": "string", "description": "Natural language search query"},
					"limit": {"type": "integer", "description": "Maximum snippets to return (default 5)"}
				},
				"required": ["user_id", "query"]
			}`),
		},
		{
			Name:        "get_user_profile",
			Description: "Fetch the full stored profile document for a user.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "string", "description": "User whose profile to fetch"}
				},
				"required": ["user_id"]
			}`),
		},
		{
			Name:        "search_user_events",
			Description: "Search a user's event log and important events for entries matching a query.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "string", "description": "User whose events to search"},
					"query": {"type": "string", "description": "Natural language search query"},
					"limit": {"type": "integer", "description": "Maximum snippets to return (default 5)"}
				},
				"required": ["user_id", "query"]
			}`),
		},
		{
			Name:        "list_users",
			Description: "List all user IDs with stored memories under this agent.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}

// Execute dispatches one tool call. Argument and lookup failures are
// returned in ToolResult.Error so the LLM can recover; only systemic
// failures surface as Go errors.
func (m *MemoryTools) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	switch name {
	case "answer_question":
		return m.search(ctx, args, nil)
	case "get_user_profile":
		return m.profile(ctx, args)
	case "search_user_events":
		return m.search(ctx, args, []string{"event", "important_event"})
	case "list_users":
		return m.listUsers(ctx)
	default:
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
}

type searchArgs struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

func (m *MemoryTools) search(ctx context.Context, args json.RawMessage, categories []string) (ToolResult, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ToolResult{Error: "invalid arguments: " + err.Error()}, nil
	}
	if a.UserID == "" || a.Query == "" {
		return ToolResult{Error: "user_id and query are required"}, nil
	}
	if a.Limit <= 0 {
		a.Limit = defaultSearchLimit
	}
	hits, err := m.recall.Search(ctx, SearchRequest{
		AgentID:    m.agentID,
		UserID:     a.UserID,
		Query:      a.Query,
		Categories: categories,
		Limit:      a.Limit,
	})
	if err != nil {
		return ToolResult{}, err
	}
	if len(hits) == 0 {
		return ToolResult{Content: "no matching memories found"}, nil
	}
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. [%s, %s] %s\n", i+1, h.Category, h.RelevanceTier, h.Content)
	}
	return ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}

func (m *MemoryTools) profile(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return ToolResult{Error: "invalid arguments: " + err.Error()}, nil
	}
	if a.UserID == "" {
		return ToolResult{Error: "user_id is required"}, nil
	}
	content, err := m.storage.Read(ctx, m.agentID, a.UserID, "profile")
	if err != nil {
		return ToolResult{}, err
	}
	if strings.TrimSpace(content) == "" {
		return ToolResult{Content: "no profile stored for " + a.UserID}, nil
	}
	return ToolResult{Content: content}, nil
}

func (m *MemoryTools) listUsers(ctx context.Context) (ToolResult, error) {
	users, err := m.storage.ListUsers(ctx, m.agentID)
	if err != nil {
		return ToolResult{}, err
	}
	if len(users) == 0 {
		return ToolResult{Content: "no users stored"}, nil
	}
	return ToolResult{Content: strings.Join(users, ", ")}, nil
}

// AnswerWithTools answers a question by letting the LLM drive retrieval
// through the memory tools instead of the fixed retrieve/judge loop. The
// conversation runs until the model replies without tool calls or the
// turn budget is spent; the last assistant content wins either way.
func (a *ResponseAgent) AnswerWithTools(ctx context.Context, req AnswerRequest) (ToolAnswerResult, error) {
	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "memora.response.answer_tools",
			StringAttr("agent_id", req.AgentID))
		defer span.End()
	}

	maxTurns := req.MaxIterations
	if maxTurns <= 0 {
		maxTurns = defaultToolTurns
	}

	registry := NewToolRegistry()
	registry.Add(NewMemoryTools(a.recall, a.storage, req.AgentID))
	defs := registry.AllDefinitions()

	messages := []ChatMessage{
		SystemMessage("You answer questions about users from their stored memories. " +
			"Use the available tools to look up relevant information before answering. " +
			"If the memories do not contain the answer, say so plainly."),
		UserMessage(req.Question),
	}

	var result ToolAnswerResult
	for turn := 0; turn < maxTurns; turn++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		resp, err := a.provider.ChatWithTools(ctx, ChatRequest{Messages: messages}, defs)
		if err != nil {
			return result, err
		}
		result.Turns = turn + 1
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 {
			result.Answer = strings.TrimSpace(resp.Content)
			return result, nil
		}
		if resp.Content != "" {
			result.Answer = strings.TrimSpace(resp.Content)
		}

		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			res, err := registry.Execute(ctx, call.Name, call.Args)
			if err != nil {
				res = ToolResult{Error: err.Error()}
			}
			content := res.Content
			if res.Error != "" {
				content = "error: " + res.Error
			}
			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
				Name:   call.Name,
				Args:   string(call.Args),
				Result: content,
			})
			messages = append(messages, ToolResultMessage(call.ID, content))
		}
	}

	a.logger.Warn("tool conversation exhausted turn budget", "turns", maxTurns)
	return result, nil
}

package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/memora"
)

// ParseResponse converts an OpenAI-format ChatResponse to a memora
// ChatResponse. It extracts content, tool calls, and usage from
// choices[0].
func ParseResponse(resp ChatResponse) (memora.ChatResponse, error) {
	var out memora.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = memora.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to memora ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid JSON is
// replaced with an empty object so dispatch still proceeds.
func ParseToolCalls(tcs []ToolCallRequest) []memora.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]memora.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, memora.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}

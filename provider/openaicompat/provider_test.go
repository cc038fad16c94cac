package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nevindra/memora"
)

func TestProviderChat(t *testing.T) {
	var gotAuth string
	var gotBody ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: &ChoiceMessage{Content: "pong"}}},
			Usage:   &Usage{PromptTokens: 5, CompletionTokens: 1},
		})
	}))
	defer srv.Close()

	p := NewProvider("sk-test", "test-model", srv.URL)
	resp, err := p.Chat(context.Background(), memora.ChatRequest{
		Messages: []memora.ChatMessage{memora.UserMessage("ping")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "pong" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Model != "test-model" || len(gotBody.Messages) != 1 {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestProviderChatWithTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ChatRequest
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Tools) != 1 || body.Tools[0].Function.Name != "search_memory" {
			t.Errorf("tools = %+v", body.Tools)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []Choice{{Message: &ChoiceMessage{
				ToolCalls: []ToolCallRequest{{
					ID:       "c1",
					Type:     "function",
					Function: FunctionCall{Name: "search_memory", Arguments: `{"query":"x"}`},
				}},
			}}},
		})
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	resp, err := p.ChatWithTools(context.Background(),
		memora.ChatRequest{Messages: []memora.ChatMessage{memora.UserMessage("q")}},
		[]memora.ToolDefinition{{Name: "search_memory", Description: "d"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search_memory" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}

func TestProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider("", "m", srv.URL)
	_, err := p.Chat(context.Background(), memora.ChatRequest{
		Messages: []memora.ChatMessage{memora.UserMessage("q")},
	})
	var httpErr *memora.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *ErrHTTP", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d", httpErr.Status)
	}
}

func TestProviderName(t *testing.T) {
	if got := NewProvider("", "m", "http://x").Name(); got != "openai" {
		t.Errorf("default Name = %q", got)
	}
	if got := NewProvider("", "m", "http://x", WithName("groq")).Name(); got != "groq" {
		t.Errorf("Name = %q", got)
	}
}

func TestEmbedderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req EmbeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 2 {
			t.Errorf("input = %v", req.Input)
		}
		// Shuffled index order; the client must restore input order.
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 1, Embedding: []float32{0, 1}},
			{Index: 0, Embedding: []float32{1, 0}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedder("k", "emb-model", srv.URL, 2)
	vecs, err := e.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("vecs = %v", vecs)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("order not restored: %v", vecs)
	}
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 0, Embedding: []float32{1}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedder("", "m", srv.URL, 1)
	_, err := e.Embed(context.Background(), []string{"a", "b"})
	var llmErr *memora.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("error = %v, want *ErrLLM", err)
	}
}

func TestEmbedderEmptyInput(t *testing.T) {
	e := NewEmbedder("", "m", "http://unused", 1)
	vecs, err := e.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("Embed(nil) = %v, %v", vecs, err)
	}
}

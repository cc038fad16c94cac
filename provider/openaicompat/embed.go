package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/nevindra/memora"
)

// Embedder implements memora.EmbeddingProvider against the OpenAI
// embeddings endpoint. The /embeddings path is appended to baseURL.
type Embedder struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
	name       string
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithEmbedderName overrides the name reported by Name().
func WithEmbedderName(name string) EmbedderOption {
	return func(e *Embedder) { e.name = name }
}

// WithEmbedderHTTPClient replaces the default http.Client.
func WithEmbedderHTTPClient(c *http.Client) EmbedderOption {
	return func(e *Embedder) { e.client = c }
}

// NewEmbedder creates an embedding client. dimensions is the vector size
// the model produces (e.g. 1536 for text-embedding-3-small).
func NewEmbedder(apiKey, model, baseURL string, dimensions int, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
		client:     &http.Client{},
		name:       "openai",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns the embedder name.
func (e *Embedder) Name() string { return e.name }

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed returns embedding vectors for the given texts, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(EmbeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, &memora.ErrLLM{Provider: e.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := e.baseURL + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &memora.ErrLLM{Provider: e.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &memora.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	var embResp EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &memora.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(embResp.Data) != len(texts) {
		return nil, &memora.ErrLLM{Provider: e.name,
			Message: fmt.Sprintf("embedding count mismatch: sent %d, got %d", len(texts), len(embResp.Data))}
	}

	// The API documents index order but some compatible servers shuffle.
	sort.Slice(embResp.Data, func(i, j int) bool { return embResp.Data[i].Index < embResp.Data[j].Index })
	out := make([][]float32, len(embResp.Data))
	for i, d := range embResp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Compile-time interface check.
var _ memora.EmbeddingProvider = (*Embedder)(nil)

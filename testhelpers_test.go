package memora

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// mockProvider is a test Provider that returns canned responses in order.
// An optional reply func overrides the scripted responses and can inspect
// the request.
type mockProvider struct {
	name      string
	responses []ChatResponse // popped in order
	idx       int
	err       error
	reply     func(req ChatRequest) (ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.reply != nil {
		return m.reply(req)
	}
	if m.err != nil {
		return ChatResponse{}, m.err
	}
	return m.next(), nil
}

func (m *mockProvider) ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error) {
	return m.Chat(ctx, req)
}

func (m *mockProvider) next() ChatResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idx >= len(m.responses) {
		return ChatResponse{Content: "exhausted"}
	}
	resp := m.responses[m.idx]
	m.idx++
	return resp
}

// lastPrompt returns the content of the last user message sent.
func (m *mockProvider) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ""
	}
	msgs := m.requests[len(m.requests)-1].Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

// memStorage is an in-memory Storage for tests, keyed by
// agent/user/category.
type memStorage struct {
	mu         sync.Mutex
	artifacts  map[string]string
	embeddings map[string][]float32
	readErr    error
	writeErr   error
}

func newMemStorage() *memStorage {
	return &memStorage{
		artifacts:  make(map[string]string),
		embeddings: make(map[string][]float32),
	}
}

func key(agentID, userID, category string) string {
	return agentID + "/" + userID + "/" + category
}

func (s *memStorage) Read(_ context.Context, agentID, userID, category string) (string, error) {
	if s.readErr != nil {
		return "", s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifacts[key(agentID, userID, category)], nil
}

func (s *memStorage) Write(_ context.Context, agentID, userID, category, content string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[key(agentID, userID, category)] = content
	return nil
}

func (s *memStorage) Append(_ context.Context, agentID, userID, category, content string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(agentID, userID, category)
	if existing := s.artifacts[k]; existing != "" {
		s.artifacts[k] = existing + "\n\n" + content
	} else {
		s.artifacts[k] = content
	}
	return nil
}

func (s *memStorage) Exists(_ context.Context, agentID, userID, category string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifacts[key(agentID, userID, category)] != "", nil
}

func (s *memStorage) ListCategories(_ context.Context, agentID, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := agentID + "/" + userID + "/"
	var cats []string
	for k, v := range s.artifacts {
		if v != "" && strings.HasPrefix(k, prefix) {
			cats = append(cats, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(cats)
	return cats, nil
}

func (s *memStorage) ListUsers(_ context.Context, agentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for k := range s.artifacts {
		parts := strings.SplitN(k, "/", 3)
		if len(parts) == 3 && parts[0] == agentID {
			seen[parts[1]] = true
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (s *memStorage) Clear(_ context.Context, agentID, userID, category string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category != "" {
		k := key(agentID, userID, category)
		if _, ok := s.artifacts[k]; !ok {
			return 0, nil
		}
		delete(s.artifacts, k)
		return 1, nil
	}
	prefix := agentID + "/" + userID + "/"
	count := 0
	for k := range s.artifacts {
		if strings.HasPrefix(k, prefix) {
			delete(s.artifacts, k)
			count++
		}
	}
	return count, nil
}

func (s *memStorage) SaveEmbedding(_ context.Context, agentID, userID, category string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[key(agentID, userID, category)] = embedding
	return nil
}

func (s *memStorage) Init(context.Context) error { return nil }
func (s *memStorage) Close() error               { return nil }

func (s *memStorage) get(agentID, userID, category string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifacts[key(agentID, userID, category)]
}

func (s *memStorage) set(agentID, userID, category, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[key(agentID, userID, category)] = content
}

// stubEmbedder returns fixed-dimension vectors derived from text length,
// so identical texts embed identically and calls can be counted.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
	vecFn func(text string) []float32
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, texts...)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.vecFn != nil {
			out[i] = e.vecFn(t)
			continue
		}
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Name() string    { return "stub" }

func (e *stubEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

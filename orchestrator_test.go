package memora

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

var sampleConversation = []MemoryMessage{
	{Role: "user", Content: "I started a pottery class last Tuesday."},
	{Role: "assistant", Content: "That sounds fun! How was the first session?"},
	{Role: "user", Content: "Great, we made small bowls. I want to go weekly."},
}

func TestIngestAllAgentsRun(t *testing.T) {
	st := newMemStorage()
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{Content: "generated memory"}, nil
	}}
	o := NewOrchestrator(p, st, NewPromptStore(""))

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{
		CharacterName: "Emma", SessionDate: "2024-03-01",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Outcomes) != 7 {
		t.Fatalf("outcomes = %d, want 7", len(report.Outcomes))
	}
	wantOrder := []string{"activity", "profile", "event", "reminder", "interests", "important_event", "study"}
	for i, name := range wantOrder {
		oc := report.Outcomes[i]
		if oc.Category != name {
			t.Errorf("outcome[%d] = %q, want %q", i, oc.Category, name)
		}
		if !oc.Success {
			t.Errorf("agent %s failed: %s", oc.Category, oc.Error)
		}
		if oc.OutputLength == 0 {
			t.Errorf("agent %s produced no output", oc.Category)
		}
	}
	for _, cat := range wantOrder {
		if st.get("a1", "u1", cat) == "" {
			t.Errorf("no artifact persisted for %s", cat)
		}
	}
	if report.RunID == "" || report.CompletedAt == 0 {
		t.Errorf("report not stamped: %+v", report)
	}
	if report.DurationMillis < 0 {
		t.Errorf("duration = %d", report.DurationMillis)
	}
}

func TestIngestRootFailureSkipsDependents(t *testing.T) {
	st := newMemStorage()
	p := &mockProvider{err: errors.New("model unavailable")}
	o := NewOrchestrator(p, st, NewPromptStore(""))

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Outcomes) != 7 {
		t.Fatalf("outcomes = %d, want 7", len(report.Outcomes))
	}
	root := report.Outcomes[0]
	if root.Success || root.Error == "" {
		t.Errorf("root outcome = %+v, want failure", root)
	}
	for _, oc := range report.Outcomes[1:] {
		if oc.Success {
			t.Errorf("agent %s succeeded with failed dependency", oc.Category)
		}
		if !strings.Contains(oc.Error, "dependency activity unavailable") {
			t.Errorf("agent %s error = %q, want dependency-unavailable", oc.Category, oc.Error)
		}
	}
	if len(st.artifacts) != 0 {
		t.Errorf("artifacts persisted despite total failure: %v", st.artifacts)
	}
}

func TestIngestEmptyRootOutputSkipsQuietly(t *testing.T) {
	st := newMemStorage()
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{Content: "   "}, nil
	}}
	o := NewOrchestrator(p, st, NewPromptStore(""))

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}

	for _, oc := range report.Outcomes {
		if !oc.Success {
			t.Errorf("agent %s not a quiet skip: %s", oc.Category, oc.Error)
		}
		if oc.OutputLength != 0 {
			t.Errorf("agent %s produced output from empty upstream", oc.Category)
		}
	}
	// Only the root agent was actually invoked.
	p.mu.Lock()
	calls := len(p.requests)
	p.mu.Unlock()
	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}
}

func TestIngestAppendVsReplace(t *testing.T) {
	st := newMemStorage()
	call := 0
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		call++
		return ChatResponse{Content: fmt.Sprintf("run output %02d", call)}, nil
	}}
	o := NewOrchestrator(p, st, NewPromptStore(""))

	for i := 0; i < 2; i++ {
		if _, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	// event is append-mode: both runs' outputs survive.
	event := st.get("a1", "u1", "event")
	if !strings.Contains(event, "run output 03") || !strings.Contains(event, "run output 10") {
		t.Errorf("event artifact missing an appended entry:\n%s", event)
	}

	// activity is replace-mode: only the latest run remains.
	activity := st.get("a1", "u1", "activity")
	if strings.Contains(activity, "run output 01") {
		t.Errorf("activity artifact still holds first-run content:\n%s", activity)
	}
	if !strings.Contains(activity, "run output 08") {
		t.Errorf("activity artifact missing latest content:\n%s", activity)
	}
}

func TestIngestEmbeddingCount(t *testing.T) {
	st := newMemStorage()
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{Content: "generated memory"}, nil
	}}
	emb := &stubEmbedder{}
	o := NewOrchestrator(p, st, NewPromptStore(""), WithEmbedding(emb))

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.EmbeddingCount != 7 {
		t.Errorf("EmbeddingCount = %d, want 7", report.EmbeddingCount)
	}
	if len(st.embeddings) != 7 {
		t.Errorf("stored embeddings = %d, want 7", len(st.embeddings))
	}
}

func TestIngestEmbeddingFailureDoesNotFailAgents(t *testing.T) {
	st := newMemStorage()
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{Content: "generated memory"}, nil
	}}
	emb := &stubEmbedder{err: errors.New("embedding backend down")}
	o := NewOrchestrator(p, st, NewPromptStore(""), WithEmbedding(emb))

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.EmbeddingCount != 0 {
		t.Errorf("EmbeddingCount = %d, want 0", report.EmbeddingCount)
	}
	for _, oc := range report.Outcomes {
		if !oc.Success {
			t.Errorf("agent %s failed on embedding error: %s", oc.Category, oc.Error)
		}
	}
}

func TestIngestCustomCategory(t *testing.T) {
	st := newMemStorage()
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{Content: "generated memory"}, nil
	}}
	o := NewOrchestrator(p, st, NewPromptStore(""))
	err := o.RegisterAgent(CategoryConfig{
		Name:           "health",
		Dependencies:   []string{"activity"},
		Priority:       6,
		PromptTemplate: "profile", // reuse an existing template body
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Outcomes) != 8 {
		t.Fatalf("outcomes = %d, want 8", len(report.Outcomes))
	}
	if report.Outcomes[1].Category != "health" {
		t.Errorf("outcome[1] = %q, want health (priority 6 beats profile)", report.Outcomes[1].Category)
	}
	if st.get("a1", "u1", "health") == "" {
		t.Error("no artifact persisted for health")
	}
}

func TestIngestIndependentAgentFailureIsolated(t *testing.T) {
	st := newMemStorage()
	// Dependency order with health registered: activity, health, profile,
	// event, reminder, interests, important_event, study. Fail only the
	// profile call; siblings must be unaffected.
	call := 0
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		call++
		if call == 3 {
			return ChatResponse{}, errors.New("model unavailable")
		}
		return ChatResponse{Content: "generated memory"}, nil
	}}
	o := NewOrchestrator(p, st, NewPromptStore(""))
	if err := o.RegisterAgent(CategoryConfig{
		Name:           "health",
		Dependencies:   []string{"activity"},
		Priority:       6,
		PromptTemplate: "profile",
	}); err != nil {
		t.Fatal(err)
	}

	report, err := o.Ingest(context.Background(), "a1", "u1", sampleConversation, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}

	byName := make(map[string]AgentOutcome, len(report.Outcomes))
	for _, oc := range report.Outcomes {
		byName[oc.Category] = oc
	}
	if byName["profile"].Success {
		t.Error("profile succeeded, want injected failure")
	}
	if !byName["health"].Success {
		t.Errorf("health failed: %s", byName["health"].Error)
	}
	if !byName["event"].Success {
		t.Errorf("event failed: %s", byName["event"].Error)
	}
	if st.get("a1", "u1", "profile") != "" {
		t.Error("failed profile agent persisted an artifact")
	}
}

func TestIngestContextCancellation(t *testing.T) {
	st := newMemStorage()
	ctx, cancel := context.WithCancel(context.Background())
	p := &mockProvider{reply: func(req ChatRequest) (ChatResponse, error) {
		cancel() // trip after the first agent
		return ChatResponse{Content: "generated memory"}, nil
	}}
	o := NewOrchestrator(p, st, NewPromptStore(""))

	_, err := o.Ingest(ctx, "a1", "u1", sampleConversation, IngestOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

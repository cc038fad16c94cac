package memora

import (
	"math"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := tokenize("Hello, World! It's 2024.")
	want := []string{"hello", "world", "it", "s", "2024"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize = %v, want %v", got, want)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(s-1) > 1e-9 {
		t.Errorf("identical vectors = %v, want 1", s)
	}
	if s := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(s) > 1e-9 {
		t.Errorf("orthogonal vectors = %v, want 0", s)
	}
	if s := cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); s != 0 {
		t.Errorf("mismatched lengths = %v, want 0", s)
	}
	if s := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); s != 0 {
		t.Errorf("zero vector = %v, want 0", s)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if s := jaccardSimilarity("red green blue", "red green blue"); s != 1 {
		t.Errorf("identical texts = %v, want 1", s)
	}
	if s := jaccardSimilarity("red green", "blue yellow"); s != 0 {
		t.Errorf("disjoint texts = %v, want 0", s)
	}
	// {red, green} vs {green, blue}: 1 shared of 3 total.
	if s := jaccardSimilarity("red green", "green blue"); math.Abs(s-1.0/3.0) > 1e-9 {
		t.Errorf("partial overlap = %v, want 1/3", s)
	}
	if s := jaccardSimilarity("", "anything"); s != 0 {
		t.Errorf("empty text = %v, want 0", s)
	}
}

func TestCommonWords(t *testing.T) {
	got := commonWords("likes pottery and pottery classes", "pottery classes weekly")
	want := []string{"pottery", "classes"}
	if len(got) != len(want) {
		t.Fatalf("commonWords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("commonWords = %v, want %v", got, want)
		}
	}
}

func TestBM25Scores(t *testing.T) {
	docs := []string{
		"Emma attends pottery class every Tuesday",
		"Weather report for the weekend",
		"pottery pottery pottery pottery",
	}
	scores := bm25Scores("pottery class", docs)
	if len(scores) != 3 {
		t.Fatalf("len = %d", len(scores))
	}
	if scores[1] != 0 {
		t.Errorf("non-matching doc scored %v", scores[1])
	}
	if scores[0] <= 0 || scores[2] <= 0 {
		t.Errorf("matching docs scored %v, %v", scores[0], scores[2])
	}
	// Normalized: the best score is exactly 1 and none exceed it.
	maxSeen := 0.0
	for _, s := range scores {
		if s > maxSeen {
			maxSeen = s
		}
		if s < 0 || s > 1 {
			t.Errorf("score %v outside [0,1]", s)
		}
	}
	if maxSeen != 1 {
		t.Errorf("max score = %v, want 1 after normalization", maxSeen)
	}

	// Both query terms beat one repeated term.
	if scores[0] <= scores[2] {
		t.Errorf("doc with both terms (%v) should outrank single-term doc (%v)", scores[0], scores[2])
	}
}

func TestBM25EmptyInputs(t *testing.T) {
	if s := bm25Scores("", []string{"doc"}); s[0] != 0 {
		t.Errorf("empty query scored %v", s[0])
	}
	if s := bm25Scores("query", nil); len(s) != 0 {
		t.Errorf("nil docs gave %v", s)
	}
}

func TestStringScore(t *testing.T) {
	score, exact := stringScore("pottery class", "Emma attends Pottery Class on Tuesdays")
	if !exact {
		t.Error("case-insensitive substring not detected")
	}
	if score != 1 {
		t.Errorf("exact match score = %v, want 1", score)
	}

	score, exact = stringScore("pottery lessons", "Emma attends pottery class")
	if exact {
		t.Error("false exact match")
	}
	if score <= 0 || score >= 1 {
		t.Errorf("fuzzy score = %v, want in (0,1)", score)
	}

	score, exact = stringScore("   ", "anything")
	if exact || score != 0 {
		t.Errorf("blank query: score=%v exact=%v", score, exact)
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-0.5) != 0 {
		t.Error("negative not clamped")
	}
	if clamp01(1.5) != 1 {
		t.Error("overflow not clamped")
	}
	if clamp01(0.42) != 0.42 {
		t.Error("in-range value changed")
	}
}

package memora

import (
	"math"
	"strings"
)

// tokenize lowercases and splits text into word tokens, stripping
// punctuation at token boundaries.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
	return fields
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccardSimilarity computes word-set overlap between two texts in [0, 1].
func jaccardSimilarity(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, t := range tokenize(a) {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, t := range tokenize(b) {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// commonWords returns the words shared by two texts, in first-text order.
func commonWords(a, b string) []string {
	setB := make(map[string]struct{})
	for _, t := range tokenize(b) {
		setB[t] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, t := range tokenize(a) {
		if _, ok := setB[t]; !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// BM25 ranking constants (standard values).
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Scores computes BM25 scores for the query against each document,
// then normalizes by the maximum observed score so results lie in [0, 1].
// Documents that match no query term score 0.
func bm25Scores(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(docs) == 0 {
		return scores
	}

	docTokens := make([][]string, len(docs))
	totalLen := 0
	for i, d := range docs {
		docTokens[i] = tokenize(d)
		totalLen += len(docTokens[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return scores
	}

	// Document frequency per query term.
	df := make(map[string]int, len(queryTerms))
	for _, toks := range docTokens {
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			seen[t] = struct{}{}
		}
		for _, q := range queryTerms {
			if _, ok := seen[q]; ok {
				df[q]++
			}
		}
	}

	n := float64(len(docs))
	maxScore := 0.0
	for i, toks := range docTokens {
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		docLen := float64(len(toks))
		var score float64
		for _, q := range queryTerms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[q])+0.5)/(float64(df[q])+0.5))
			score += idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range scores {
			scores[i] /= maxScore
		}
	}
	return scores
}

// stringScore combines exact substring matching with Jaccard word overlap.
// Returns the score in [0, 1] and whether the query appears verbatim
// (case-insensitive) in the document.
func stringScore(query, doc string) (float64, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	d := strings.ToLower(doc)
	exact := q != "" && strings.Contains(d, q)

	score := jaccardSimilarity(query, doc) * 0.8
	if exact {
		score = 1
	}
	return score, exact
}

// clamp01 bounds x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

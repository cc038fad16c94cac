package memora

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
)

// Combined-score weights per retrieval method.
const (
	weightSemantic = 0.5
	weightBM25     = 0.3
	weightString   = 0.2
	// exactMatchBoost caps the bonus added when the query appears verbatim.
	exactMatchBoost = 0.2
	// defaultMinSemanticScore is the semantic cutoff below which a cosine
	// score is treated as zero inside recall.
	defaultMinSemanticScore = 0.1
	// snippetMaxRunes bounds result content for display.
	snippetMaxRunes = 200
)

// Search method names.
const (
	MethodSemantic = "semantic"
	MethodBM25     = "bm25"
	MethodString   = "string"
)

// SearchRequest describes one recall search.
type SearchRequest struct {
	AgentID string
	UserID  string
	Query   string
	// Categories restricts the search; empty means all registered.
	Categories []string
	// Limit bounds the number of results (default 10).
	Limit int
	// Methods selects retrieval strategies; empty means all three
	// (semantic only when an embedding provider is configured).
	Methods []string
}

// RecallAgent performs multi-modal retrieval across a memory space's
// category artifacts, combining vector similarity, BM25, and substring/
// fuzzy scores into a single ranking. It also imports documents into
// categories (see importer.go).
type RecallAgent struct {
	storage     Storage
	registry    *Registry
	embed       *EmbedCache // nil = word-overlap fallback for semantic
	logger      *slog.Logger
	tracer      Tracer
	minSemantic float64
	stopped     atomic.Bool
}

// RecallOption configures a RecallAgent.
type RecallOption func(*RecallAgent)

// WithRecallEmbedding enables true semantic scoring via the provider.
// Without it, the semantic method falls back to word-overlap estimation.
func WithRecallEmbedding(p EmbeddingProvider) RecallOption {
	return func(r *RecallAgent) {
		if p != nil {
			r.embed = NewEmbedCache(p)
		}
	}
}

// WithRecallEmbedCache shares an existing embedding cache (e.g. the
// orchestrator's) so retrieval reuses vectors computed during ingestion.
func WithRecallEmbedCache(c *EmbedCache) RecallOption {
	return func(r *RecallAgent) { r.embed = c }
}

// WithRecallRegistry replaces the default category registry.
func WithRecallRegistry(reg *Registry) RecallOption {
	return func(r *RecallAgent) { r.registry = reg }
}

// WithRecallLogger sets a structured logger.
func WithRecallLogger(l *slog.Logger) RecallOption {
	return func(r *RecallAgent) { r.logger = l }
}

// WithRecallTracer enables span creation for searches and imports.
func WithRecallTracer(t Tracer) RecallOption {
	return func(r *RecallAgent) { r.tracer = t }
}

// WithMinSemanticScore overrides the semantic inclusion cutoff.
func WithMinSemanticScore(min float64) RecallOption {
	return func(r *RecallAgent) { r.minSemantic = min }
}

// NewRecallAgent creates a recall agent over the given storage.
func NewRecallAgent(storage Storage, opts ...RecallOption) *RecallAgent {
	r := &RecallAgent{
		storage:     storage,
		registry:    DefaultRegistry(),
		logger:      nopLogger,
		minSemantic: defaultMinSemanticScore,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Stop trips the cooperative stop signal. Long-running imports and scans
// check it at loop boundaries and return partial results tagged as stopped.
func (r *RecallAgent) Stop() { r.stopped.Store(true) }

// Reset clears the stop signal so the agent can be reused.
func (r *RecallAgent) Reset() { r.stopped.Store(false) }

// document is one line-sized unit of a category artifact.
type document struct {
	category  string
	lineIndex int
	content   string
}

// Search runs multi-modal retrieval and returns ranked snippets. A query
// matching nothing returns an empty list and no error. Zero-score items
// are never returned; every returned score lies in [0, 1]. For fixed
// inputs and an unchanged embedding cache, the result order is stable.
func (r *RecallAgent) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if r.tracer != nil {
		var span Span
		ctx, span = r.tracer.Start(ctx, "memora.recall.search",
			StringAttr("agent_id", req.AgentID),
			StringAttr("user_id", req.UserID))
		defer span.End()
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	methods := req.Methods
	if len(methods) == 0 {
		methods = []string{MethodSemantic, MethodBM25, MethodString}
	}
	enabled := make(map[string]bool, len(methods))
	for _, m := range methods {
		enabled[m] = true
	}

	categories := req.Categories
	if len(categories) == 0 {
		categories = r.registry.Names()
	}

	docs, err := r.collectDocuments(ctx, req.AgentID, req.UserID, categories)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []SearchResult{}, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.content
	}

	semantic := make([]float64, len(docs))
	if enabled[MethodSemantic] {
		semantic = r.semanticScores(ctx, req.Query, texts)
	}
	bm25 := make([]float64, len(docs))
	if enabled[MethodBM25] {
		bm25 = bm25Scores(req.Query, texts)
	}

	var results []SearchResult
	for i, d := range docs {
		var strScore float64
		var exact bool
		if enabled[MethodString] {
			strScore, exact = stringScore(req.Query, d.content)
		}

		combined := weightSemantic*semantic[i] + weightBM25*bm25[i] + weightString*strScore
		if exact {
			combined += min(1-combined, exactMatchBoost)
		}
		combined = clamp01(combined)
		if combined <= 0 {
			continue
		}

		results = append(results, SearchResult{
			Category:      d.category,
			UserID:        req.UserID,
			LineIndex:     d.lineIndex,
			Content:       snippet(d.content),
			Semantic:      semantic[i],
			BM25:          bm25[i],
			String:        strScore,
			Combined:      combined,
			ExactMatch:    exact,
			MethodsUsed:   methods,
			RelevanceTier: tierFor(combined),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Combined > results[j].Combined
	})
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []SearchResult{}
	}

	r.logger.Debug("recall search completed",
		"query_len", len(req.Query), "documents", len(docs), "results", len(results))
	return results, nil
}

// FindSimilar searches with referenceText as the query, keeps hits with a
// combined score at or above threshold, and attaches lexical analysis.
func (r *RecallAgent) FindSimilar(ctx context.Context, agentID, userID, referenceText string, threshold float64, maxResults int) ([]SimilarResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	hits, err := r.Search(ctx, SearchRequest{
		AgentID: agentID,
		UserID:  userID,
		Query:   referenceText,
		Limit:   maxResults * 2, // overfetch before threshold filtering
	})
	if err != nil {
		return nil, err
	}

	refLen := len([]rune(referenceText))
	var out []SimilarResult
	for _, h := range hits {
		if h.Combined < threshold {
			continue
		}
		ratio := 0.0
		if refLen > 0 {
			ratio = float64(len([]rune(h.Content))) / float64(refLen)
		}
		out = append(out, SimilarResult{
			SearchResult:      h,
			CommonWords:       commonWords(referenceText, h.Content),
			JaccardSimilarity: jaccardSimilarity(referenceText, h.Content),
			LengthRatio:       ratio,
		})
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// collectDocuments reads each category artifact and splits it into
// line-sized documents. Checks the stop signal between categories.
func (r *RecallAgent) collectDocuments(ctx context.Context, agentID, userID string, categories []string) ([]document, error) {
	var docs []document
	for _, cat := range categories {
		if r.stopped.Load() {
			return docs, &ErrCancelled{Partial: "search stopped after " + cat}
		}
		if ctx.Err() != nil {
			return docs, ctx.Err()
		}
		content, err := r.storage.Read(ctx, agentID, userID, cat)
		if err != nil {
			return nil, err
		}
		for i, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			docs = append(docs, document{category: cat, lineIndex: i, content: line})
		}
	}
	return docs, nil
}

// semanticScores embeds the query and each document and computes clamped
// cosine similarity. Without an embedding provider it falls back to plain
// word-overlap estimation. Scores below the semantic cutoff are zeroed.
func (r *RecallAgent) semanticScores(ctx context.Context, query string, docs []string) []float64 {
	scores := make([]float64, len(docs))

	if r.embed == nil {
		for i, d := range docs {
			scores[i] = jaccardSimilarity(query, d)
		}
		return scores
	}

	qvec, err := r.embed.GetOrCompute(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, semantic scores zeroed", "error", err)
		return scores
	}
	for i, d := range docs {
		dvec, err := r.embed.GetOrCompute(ctx, d)
		if err != nil {
			continue
		}
		s := clamp01(cosineSimilarity(qvec, dvec))
		if s < r.minSemantic {
			s = 0
		}
		scores[i] = s
	}
	return scores
}

func tierFor(combined float64) RelevanceTier {
	switch {
	case combined >= 0.7:
		return TierHigh
	case combined >= 0.4:
		return TierMedium
	default:
		return TierLow
	}
}

// snippet truncates content for display, appending "…" when trimmed.
func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetMaxRunes {
		return s
	}
	return string(runes[:snippetMaxRunes]) + "…"
}

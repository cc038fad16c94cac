package memora

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Iteration and retrieval defaults for the response agent.
const (
	defaultMaxIterations = 3
	defaultSearchLimit   = 5
	// contextSummaryMaxRunes bounds the context excerpt shown to the
	// query-refinement prompt.
	contextSummaryMaxRunes = 1500
)

// AnswerRequest describes one question-answering call.
type AnswerRequest struct {
	AgentID  string
	Question string
	// Users restricts retrieval to these user IDs; empty means every user
	// stored under AgentID.
	Users []string
	// MaxIterations bounds the retrieve/judge loop (default 3).
	MaxIterations int
	// SearchLimit bounds snippets per retrieval pass per user (default 5).
	SearchLimit int
}

// ResponseAgent answers free-form questions grounded in stored memories
// using an iterative retrieve → judge-sufficiency → refine loop, then a
// final synthesis pass. Construct one per request; instances hold no
// cross-request state beyond the shared collaborators.
type ResponseAgent struct {
	provider Provider
	recall   *RecallAgent
	storage  Storage
	prompts  *PromptStore
	logger   *slog.Logger
	tracer   Tracer
}

// ResponseOption configures a ResponseAgent.
type ResponseOption func(*ResponseAgent)

// WithResponsePrompts replaces the embedded sufficiency/refinement/
// synthesis templates with a caller-provided store.
func WithResponsePrompts(p *PromptStore) ResponseOption {
	return func(a *ResponseAgent) { a.prompts = p }
}

// WithResponseLogger sets a structured logger.
func WithResponseLogger(l *slog.Logger) ResponseOption {
	return func(a *ResponseAgent) { a.logger = l }
}

// WithResponseTracer enables span creation for answer calls.
func WithResponseTracer(t Tracer) ResponseOption {
	return func(a *ResponseAgent) { a.tracer = t }
}

// NewResponseAgent creates a response agent over the given collaborators.
func NewResponseAgent(provider Provider, recall *RecallAgent, storage Storage, opts ...ResponseOption) *ResponseAgent {
	a := &ResponseAgent{
		provider: provider,
		recall:   recall,
		storage:  storage,
		prompts:  NewPromptStore(""),
		logger:   nopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Answer runs the iterative direct mode: retrieve snippets for the
// current query, deduplicate, ask the LLM whether the context suffices,
// refine the query if not, and finally synthesize an answer from the
// deduplicated snippets. LLM failures in the sufficiency or refinement
// steps terminate the loop and fall through to synthesis with whatever
// has been retrieved.
func (a *ResponseAgent) Answer(ctx context.Context, req AnswerRequest) (AnswerResult, error) {
	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "memora.response.answer",
			StringAttr("agent_id", req.AgentID))
		defer span.End()
	}

	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	searchLimit := req.SearchLimit
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}

	users := req.Users
	if len(users) == 0 {
		listed, err := a.storage.ListUsers(ctx, req.AgentID)
		if err != nil {
			return AnswerResult{}, err
		}
		users = listed
	}

	var result AnswerResult
	var retrieved []SearchResult
	seen := make(map[string]struct{})
	currentQuery := req.Question

	for i := 0; i < maxIter; i++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		trace := IterationTrace{Query: currentQuery}

		added := 0
		for _, user := range users {
			hits, err := a.recall.Search(ctx, SearchRequest{
				AgentID: req.AgentID,
				UserID:  user,
				Query:   currentQuery,
				Limit:   searchLimit,
			})
			if err != nil {
				a.logger.Warn("retrieval failed", "user", user, "error", err)
				continue
			}
			for _, h := range hits {
				key := h.UserID + "\x00" + normalizeForDedup(h.Content)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				retrieved = append(retrieved, h)
				added++
			}
		}
		trace.Retrieved = added
		result.IterationsUsed = i + 1

		// Nothing retrieved at all: skip the sufficiency call and proceed
		// straight to synthesis with no context.
		if len(retrieved) == 0 {
			trace.Note = "no context retrieved"
			result.Trace = append(result.Trace, trace)
			break
		}

		verdict, raw, err := a.judgeSufficiency(ctx, req.Question, retrieved)
		if err != nil {
			trace.Note = "sufficiency check failed: " + err.Error()
			result.Trace = append(result.Trace, trace)
			break
		}
		trace.Verdict = verdict
		trace.VerdictRaw = raw

		if verdict.Sufficient {
			result.Trace = append(result.Trace, trace)
			break
		}

		// A refined query on the last iteration could never be searched;
		// skip the LLM call and synthesize with what we have.
		if i == maxIter-1 {
			result.Trace = append(result.Trace, trace)
			break
		}

		next, err := a.proposeQuery(ctx, req.Question, verdict.MissingInfo, retrieved)
		if err != nil || next == "" {
			trace.Note = "query refinement failed, synthesizing with current context"
			result.Trace = append(result.Trace, trace)
			break
		}
		currentQuery = next
		result.Trace = append(result.Trace, trace)
	}

	answer, reasoning, usage, err := a.synthesize(ctx, req.Question, retrieved)
	if err != nil {
		return result, err
	}
	result.Answer = answer
	result.Reasoning = reasoning
	result.Retrieved = retrieved
	result.Usage = usage
	return result, nil
}

// judgeSufficiency asks the LLM whether the retrieved context answers the
// question, returning the parsed verdict and the raw reply.
func (a *ResponseAgent) judgeSufficiency(ctx context.Context, question string, retrieved []SearchResult) (SufficiencyVerdict, string, error) {
	prompt, err := a.prompts.Render("sufficiency", map[string]string{
		"question": question,
		"context":  buildContext(retrieved),
	})
	if err != nil {
		return SufficiencyVerdict{}, "", err
	}
	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
	if err != nil {
		return SufficiencyVerdict{}, "", err
	}
	return parseSufficiency(resp.Content), resp.Content, nil
}

// proposeQuery asks the LLM for a focused follow-up query that targets
// the missing information.
func (a *ResponseAgent) proposeQuery(ctx context.Context, question, missing string, retrieved []SearchResult) (string, error) {
	summary := buildContext(retrieved)
	if runes := []rune(summary); len(runes) > contextSummaryMaxRunes {
		summary = string(runes[:contextSummaryMaxRunes]) + "…"
	}
	prompt, err := a.prompts.Render("refine_query", map[string]string{
		"question":     question,
		"missing_info": missing,
		"context":      summary,
	})
	if err != nil {
		return "", err
	}
	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
	if err != nil {
		return "", err
	}
	query := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	return query, nil
}

// synthesize produces the final answer from the deduplicated snippets.
// The LLM is instructed to reason inside <thinking> and answer inside
// <result>; missing delimiters fall back to the full reply.
func (a *ResponseAgent) synthesize(ctx context.Context, question string, retrieved []SearchResult) (answer, reasoning string, usage Usage, err error) {
	contextText := buildContext(retrieved)
	if contextText == "" {
		contextText = "(no stored memories matched the question)"
	}
	prompt, err := a.prompts.Render("synthesis", map[string]string{
		"question": question,
		"context":  contextText,
	})
	if err != nil {
		return "", "", usage, err
	}
	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
	if err != nil {
		return "", "", usage, err
	}
	usage = resp.Usage

	reasoning = extractDelimited(resp.Content, "<thinking>", "</thinking>")
	answer = extractDelimited(resp.Content, "<result>", "</result>")
	if answer == "" {
		answer = strings.TrimSpace(resp.Content)
	}
	return answer, reasoning, usage, nil
}

// buildContext renders snippets as a numbered context block, attributing
// each line to its user and category.
func buildContext(retrieved []SearchResult) string {
	if len(retrieved) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range retrieved {
		fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, r.UserID, r.Category, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// extractDelimited returns the trimmed text between start and end, or ""
// when either delimiter is absent.
func extractDelimited(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:j])
}

// normalizeForDedup canonicalizes snippet content for duplicate detection:
// unicode NFC, trimmed, lowercased.
func normalizeForDedup(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

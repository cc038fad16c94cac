package memora

import (
	"context"
	"log/slog"
	"time"
)

// Orchestrator runs the memory ingestion pipeline: it resolves the
// registered categories into dependency order, executes one CategoryAgent
// per category serially in that order, and collects per-agent outcomes.
//
// Shared state is limited to the registry, prompt store, embedding cache,
// and storage backend. Agent instances are constructed per ingestion, so
// concurrent Ingest calls never share mutable agent state.
type Orchestrator struct {
	provider Provider
	storage  Storage
	prompts  *PromptStore
	registry *Registry
	embed    *EmbedCache
	logger   *slog.Logger
	tracer   Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithEmbedding enables artifact embedding via the given provider.
// Vectors are computed through a shared exact-text cache.
func WithEmbedding(p EmbeddingProvider) OrchestratorOption {
	return func(o *Orchestrator) {
		if p != nil {
			o.embed = NewEmbedCache(p)
		}
	}
}

// WithRegistry replaces the default category registry.
func WithRegistry(r *Registry) OrchestratorOption {
	return func(o *Orchestrator) { o.registry = r }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer enables span creation for ingestion runs and agent steps.
func WithTracer(t Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// NewOrchestrator creates an orchestrator with the seven standard
// categories registered.
func NewOrchestrator(provider Provider, storage Storage, prompts *PromptStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		storage:  storage,
		prompts:  prompts,
		registry: DefaultRegistry(),
		logger:   nopLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the orchestrator's category registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// RegisterAgent registers a custom category at runtime. The category's
// agent participates in every subsequent ingestion.
func (o *Orchestrator) RegisterAgent(config CategoryConfig) error {
	return o.registry.Register(config)
}

// Ingest processes one conversation into category memories for the
// (agentID, userID) memory space. Category agents run serially in
// dependency order; per-agent errors are captured in the report and do
// not abort independent agents. An agent whose dependency failed is
// skipped with a dependency-unavailable outcome; an agent whose
// dependency succeeded with empty output is skipped quietly.
func (o *Orchestrator) Ingest(ctx context.Context, agentID, userID string, conversation []MemoryMessage, opts IngestOptions) (IngestionReport, error) {
	start := time.Now()
	report := IngestionReport{RunID: NewID()}

	if o.tracer != nil {
		var span Span
		ctx, span = o.tracer.Start(ctx, "memora.ingest",
			StringAttr("run_id", report.RunID),
			StringAttr("agent_id", agentID),
			StringAttr("user_id", userID),
			IntAttr("messages", len(conversation)))
		defer span.End()
	}

	order, err := o.registry.DependencyOrder()
	if err != nil {
		return report, err
	}

	characterName := opts.CharacterName
	if characterName == "" {
		characterName = userID
	}
	sessionDate := opts.SessionDate
	if sessionDate == "" {
		sessionDate = time.Now().Format("2006-01-02")
	}

	transcript := FormatConversation(conversation)

	// produced holds each successful agent's output for downstream
	// dependency injection. failed marks categories whose agent errored.
	produced := make(map[string]string, len(order))
	failed := make(map[string]bool)

	for _, name := range order {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		cfg, err := o.registry.Get(name)
		if err != nil {
			// Registry mutated out from under the run; fatal for this request.
			return report, err
		}

		outcome := o.runAgent(ctx, cfg, agentID, userID, characterName, sessionDate, transcript, produced, failed)
		if outcome.Success && outcome.OutputLength > 0 {
			o.logger.Debug("agent completed", "category", name, "output_length", outcome.OutputLength)
		}
		report.Outcomes = append(report.Outcomes, outcome.AgentOutcome)
		if outcome.embedded {
			report.EmbeddingCount++
		}
	}

	report.CompletedAt = NowUnix()
	report.DurationMillis = time.Since(start).Milliseconds()
	return report, nil
}

// agentRunOutcome pairs the public outcome with embedding bookkeeping.
type agentRunOutcome struct {
	AgentOutcome
	embedded bool
}

func (o *Orchestrator) runAgent(ctx context.Context, cfg CategoryConfig, agentID, userID, characterName, sessionDate, transcript string, produced map[string]string, failed map[string]bool) agentRunOutcome {
	outcome := agentRunOutcome{AgentOutcome: AgentOutcome{Category: cfg.Name}}

	// Dependency gate: a failed upstream skips this agent with an error
	// outcome; an empty upstream output skips it quietly.
	deps := make(map[string]string, len(cfg.Dependencies))
	for _, dep := range cfg.Dependencies {
		if failed[dep] {
			err := &ErrDependencyUnavailable{Category: cfg.Name, Dependency: dep}
			outcome.Error = err.Error()
			failed[cfg.Name] = true
			o.logger.Warn("agent skipped", "category", cfg.Name, "failed_dependency", dep)
			return outcome
		}
		if produced[dep] == "" {
			outcome.Success = true
			o.logger.Debug("agent skipped, dependency produced no content",
				"category", cfg.Name, "dependency", dep)
			return outcome
		}
		deps[dep] = produced[dep]
	}

	// The root agent consumes the raw conversation; everyone else consumes
	// the activity summary produced earlier in this run.
	input := transcript
	if !cfg.IsRoot {
		input = produced["activity"]
	}

	agentCtx := ctx
	if o.tracer != nil {
		var span Span
		agentCtx, span = o.tracer.Start(ctx, "memora.agent",
			StringAttr("category", cfg.Name))
		defer span.End()
	}

	agent := NewCategoryAgent(cfg, o.provider, o.storage, o.prompts, o.embed, o.logger)
	text, embedded, err := agent.Process(agentCtx, agentID, userID, characterName, sessionDate, input, deps)
	if err != nil {
		outcome.Error = err.Error()
		failed[cfg.Name] = true
		o.logger.Error("agent failed", "category", cfg.Name, "error", err)
		return outcome
	}

	produced[cfg.Name] = text
	outcome.Success = true
	outcome.OutputLength = len(text)
	outcome.embedded = embedded
	return outcome
}

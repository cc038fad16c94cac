// Command memora is a CLI for the memora memory service: ingest
// conversations, search memories, answer questions, and import documents.
//
// Usage:
//
//	memora ingest  -agent a1 -user u1 [-file conversation.json]
//	memora search  -agent a1 -user u1 -query "pottery class"
//	memora answer  -agent a1 -question "What are Emma's hobbies?"
//	memora import  -agent a1 -user u1 -path notes.md
//	memora history -agent a1 [-user u1]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	memora "github.com/nevindra/memora"
	"github.com/nevindra/memora/internal/config"
	"github.com/nevindra/memora/observer"
	"github.com/nevindra/memora/provider/openaicompat"
	storefs "github.com/nevindra/memora/store/fs"
	storepg "github.com/nevindra/memora/store/postgres"
	storesqlite "github.com/nevindra/memora/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load(os.Getenv("MEMORA_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, shutdown, err := buildApp(ctx, cfg)
	if err != nil {
		log.Fatalf("memora: %v", err)
	}
	defer shutdown(context.Background())

	var cmdErr error
	switch os.Args[1] {
	case "ingest":
		cmdErr = app.runIngest(ctx, os.Args[2:])
	case "search":
		cmdErr = app.runSearch(ctx, os.Args[2:])
	case "answer":
		cmdErr = app.runAnswer(ctx, os.Args[2:])
	case "import":
		cmdErr = app.runImport(ctx, os.Args[2:])
	case "history":
		cmdErr = app.runHistory(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		log.Fatalf("memora %s: %v", os.Args[1], cmdErr)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: memora <ingest|search|answer|import|history> [flags]")
}

// app bundles the wired agents for the CLI commands.
type app struct {
	cfg      config.Config
	storage  memora.Storage
	provider memora.Provider
	orch     *memora.Orchestrator
	recall   *memora.RecallAgent
	response *memora.ResponseAgent
	inst     *observer.Instruments
}

// buildApp wires config into storage, providers, and agents. The returned
// shutdown closes the storage and flushes telemetry.
func buildApp(ctx context.Context, cfg config.Config) (*app, func(context.Context) error, error) {
	var provider memora.Provider = openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	var embedding memora.EmbeddingProvider
	if cfg.Embedding.Model != "" {
		embedding = openaicompat.NewEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)
	}

	// Observer (opt-in via config)
	var tracer memora.Tracer
	var inst *observer.Instruments
	shutdownOTEL := func(context.Context) error { return nil }
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("observer init: %w", err)
		}
		shutdownOTEL = shutdown
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
		if embedding != nil {
			embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
		}
		tracer = observer.NewTracer()
		log.Println(" [observer] OTEL observability enabled")
	}

	storage, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Init(ctx); err != nil {
		closeStorage()
		return nil, nil, fmt.Errorf("storage init: %w", err)
	}

	// Category metadata and prompt templates come from the prompts dir
	// when configured, falling back to the embedded defaults.
	prompts := memora.NewPromptStore(cfg.Prompts.Dir)
	cats, err := memora.LoadCategories(cfg.Prompts.Dir)
	if err != nil {
		closeStorage()
		return nil, nil, fmt.Errorf("load categories: %w", err)
	}
	registry := memora.NewRegistry()
	for _, c := range cats {
		if err := registry.Register(c); err != nil {
			closeStorage()
			return nil, nil, fmt.Errorf("register category %s: %w", c.Name, err)
		}
	}

	orchOpts := []memora.OrchestratorOption{memora.WithRegistry(registry)}
	var recallOpts []memora.RecallOption
	if embedding != nil {
		orchOpts = append(orchOpts, memora.WithEmbedding(embedding))
		recallOpts = append(recallOpts, memora.WithRecallEmbedding(embedding))
	}
	if tracer != nil {
		orchOpts = append(orchOpts, memora.WithTracer(tracer))
		recallOpts = append(recallOpts, memora.WithRecallTracer(tracer))
	}
	if cfg.Recall.MinSemanticScore > 0 {
		recallOpts = append(recallOpts, memora.WithMinSemanticScore(cfg.Recall.MinSemanticScore))
	}

	orch := memora.NewOrchestrator(provider, storage, prompts, orchOpts...)
	recall := memora.NewRecallAgent(storage, recallOpts...)
	var respOpts []memora.ResponseOption
	if tracer != nil {
		respOpts = append(respOpts, memora.WithResponseTracer(tracer))
	}
	response := memora.NewResponseAgent(provider, recall, storage, respOpts...)

	a := &app{cfg: cfg, storage: storage, provider: provider, orch: orch, recall: recall, response: response, inst: inst}
	shutdown := func(ctx context.Context) error {
		closeStorage()
		return shutdownOTEL(ctx)
	}
	return a, shutdown, nil
}

// buildStorage selects the backend from config.
func buildStorage(ctx context.Context, cfg config.Config) (memora.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "", "fs":
		s := storefs.New(cfg.Storage.Dir)
		return s, func() { s.Close() }, nil
	case "sqlite":
		s := storesqlite.New(cfg.Storage.Path)
		return s, func() { s.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		opts := []storepg.Option{}
		if cfg.Embedding.Dimensions > 0 {
			opts = append(opts, storepg.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		}
		s := storepg.New(pool, opts...)
		return s, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *app) runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	agentID := fs.String("agent", "", "agent ID (required)")
	userID := fs.String("user", "", "user ID (required)")
	file := fs.String("file", "", "conversation JSON file (default stdin)")
	character := fs.String("character", "", "character name for prompts")
	date := fs.String("date", "", "session date (YYYY-MM-DD)")
	fs.Parse(args)
	if *agentID == "" || *userID == "" {
		return fmt.Errorf("-agent and -user are required")
	}

	var data []byte
	var err error
	if *file != "" {
		data, err = os.ReadFile(*file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	var messages []memora.MemoryMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("parse conversation: %w", err)
	}

	report, err := a.orch.Ingest(ctx, *agentID, *userID, messages, memora.IngestOptions{
		CharacterName: *character,
		SessionDate:   *date,
	})
	if err != nil {
		return err
	}
	if a.inst != nil {
		a.inst.RecordIngestion(ctx, *agentID, float64(report.DurationMillis))
	}
	return printJSON(report)
}

// parseSearchRequest builds a SearchRequest from flags; the result limit
// defaults from config.
func parseSearchRequest(args []string, defaultLimit int) (memora.SearchRequest, error) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	agentID := fs.String("agent", "", "agent ID (required)")
	userID := fs.String("user", "", "user ID (required)")
	query := fs.String("query", "", "search query (required)")
	limit := fs.Int("limit", defaultLimit, "max results")
	fs.Parse(args)
	if *agentID == "" || *userID == "" || *query == "" {
		return memora.SearchRequest{}, fmt.Errorf("-agent, -user and -query are required")
	}
	return memora.SearchRequest{
		AgentID: *agentID,
		UserID:  *userID,
		Query:   *query,
		Limit:   *limit,
	}, nil
}

func (a *app) runSearch(ctx context.Context, args []string) error {
	req, err := parseSearchRequest(args, a.cfg.Recall.Limit)
	if err != nil {
		return err
	}

	results, err := a.recall.Search(ctx, req)
	if err != nil {
		return err
	}
	if a.inst != nil {
		a.inst.RecordSearch(ctx, req.AgentID)
	}
	return printJSON(results)
}

// parseAnswerRequest builds an AnswerRequest from flags; the iteration
// budget defaults from config. The bool selects tool-calling mode.
func parseAnswerRequest(args []string, defaultIterations int) (memora.AnswerRequest, bool, error) {
	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	agentID := fs.String("agent", "", "agent ID (required)")
	question := fs.String("question", "", "question to answer (required)")
	user := fs.String("user", "", "restrict to one user (default all)")
	iters := fs.Int("iterations", defaultIterations, "max retrieval iterations")
	tools := fs.Bool("tools", false, "use tool-calling mode")
	fs.Parse(args)
	if *agentID == "" || *question == "" {
		return memora.AnswerRequest{}, false, fmt.Errorf("-agent and -question are required")
	}

	req := memora.AnswerRequest{
		AgentID:       *agentID,
		Question:      *question,
		MaxIterations: *iters,
	}
	if *user != "" {
		req.Users = []string{*user}
	}
	return req, *tools, nil
}

func (a *app) runAnswer(ctx context.Context, args []string) error {
	req, tools, err := parseAnswerRequest(args, a.cfg.Response.MaxIterations)
	if err != nil {
		return err
	}

	if tools {
		result, err := a.response.AnswerWithTools(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	result, err := a.response.Answer(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	agentID := fs.String("agent", "", "agent ID (required)")
	userID := fs.String("user", "", "user ID (required)")
	path := fs.String("path", "", "file or directory to import (required)")
	category := fs.String("category", "", "target category (default auto-detect)")
	pattern := fs.String("pattern", "*", "glob for directory imports")
	maxFiles := fs.Int("max-files", 0, "max files for directory imports")
	fs.Parse(args)
	if *agentID == "" || *userID == "" || *path == "" {
		return fmt.Errorf("-agent, -user and -path are required")
	}

	info, err := os.Stat(*path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		reports, err := a.recall.ImportDirectory(ctx, *path, *agentID, *userID, *pattern, *maxFiles)
		if err != nil {
			return err
		}
		return printJSON(reports)
	}
	report, err := a.recall.ImportDocument(ctx, *path, *agentID, *userID, *category, *category == "")
	if err != nil {
		return err
	}
	return printJSON(report)
}

func (a *app) runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	agentID := fs.String("agent", "", "agent ID (required)")
	userID := fs.String("user", "", "user ID (default all)")
	limit := fs.Int("limit", 50, "max entries")
	fs.Parse(args)
	if *agentID == "" {
		return fmt.Errorf("-agent is required")
	}

	hs, ok := a.storage.(memora.HistoryStore)
	if !ok {
		return fmt.Errorf("storage backend %T keeps no history log", a.storage)
	}
	entries, err := hs.History(ctx, *agentID, *userID, *limit)
	if err != nil {
		return err
	}
	return printJSON(entries)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package observer provides OTEL-based observability for memora
// operations.
//
// It wraps Provider and EmbeddingProvider with instrumented versions that
// emit traces and metrics via OpenTelemetry, and implements memora.Tracer
// over the global tracer provider so ingestion, recall, and answer spans
// land in the same trace tree. Users export to any OTEL-compatible
// backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/memora/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	TokenUsage    metric.Int64Counter
	LLMRequests   metric.Int64Counter
	EmbedRequests metric.Int64Counter
	Ingestions    metric.Int64Counter
	Searches      metric.Int64Counter

	// Histograms
	LLMDuration    metric.Float64Histogram
	EmbedDuration  metric.Float64Histogram
	IngestDuration metric.Float64Histogram
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("memora")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)

	tokenUsage, err := meter.Int64Counter("llm.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	llmRequests, err := meter.Int64Counter("llm.requests",
		metric.WithDescription("LLM request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	embedRequests, err := meter.Int64Counter("embedding.requests",
		metric.WithDescription("Embedding request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	ingestions, err := meter.Int64Counter("memory.ingestions",
		metric.WithDescription("Conversation ingestion count"),
		metric.WithUnit("{ingestion}"))
	if err != nil {
		return nil, err
	}

	searches, err := meter.Int64Counter("memory.searches",
		metric.WithDescription("Recall search count"),
		metric.WithUnit("{search}"))
	if err != nil {
		return nil, err
	}

	llmDuration, err := meter.Float64Histogram("llm.duration",
		metric.WithDescription("LLM call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	embedDuration, err := meter.Float64Histogram("embedding.duration",
		metric.WithDescription("Embedding call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram("memory.ingest.duration",
		metric.WithDescription("Ingestion pipeline duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:         tracer,
		Meter:          meter,
		TokenUsage:     tokenUsage,
		LLMRequests:    llmRequests,
		EmbedRequests:  embedRequests,
		Ingestions:     ingestions,
		Searches:       searches,
		LLMDuration:    llmDuration,
		EmbedDuration:  embedDuration,
		IngestDuration: ingestDuration,
	}, nil
}

// RecordIngestion counts one ingestion run and its pipeline duration.
func (i *Instruments) RecordIngestion(ctx context.Context, agentID string, durationMs float64) {
	attrs := metric.WithAttributes(AttrAgentID.String(agentID))
	i.Ingestions.Add(ctx, 1, attrs)
	i.IngestDuration.Record(ctx, durationMs, attrs)
}

// RecordSearch counts one recall search.
func (i *Instruments) RecordSearch(ctx context.Context, agentID string) {
	i.Searches.Add(ctx, 1, metric.WithAttributes(AttrAgentID.String(agentID)))
}

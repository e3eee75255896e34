package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SearchMetrics records per-search counters and latency with bounded
// cardinality (intent tag, outcome).
type SearchMetrics interface {
	RecordSearch(ctx context.Context, intent, outcome string, duration time.Duration)
	RecordTokens(ctx context.Context, promptTokens, completionTokens int)
	RecordVectorFallback(ctx context.Context)
}

type searchMetrics struct {
	searches        metric.Int64Counter
	latency         metric.Float64Histogram
	tokens          metric.Int64Counter
	vectorFallbacks metric.Int64Counter
}

// NewSearchMetrics creates SearchMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewSearchMetrics(meter metric.Meter) (SearchMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	searches, err := meter.Int64Counter(
		"portal_searches_total",
		metric.WithDescription("Number of search requests. Labels: intent, outcome (committed, suggestions, guidance, error)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create searches counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"portal_search_duration_seconds",
		metric.WithDescription("End-to-end search latency including classification and retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	tokens, err := meter.Int64Counter(
		"portal_llm_tokens_total",
		metric.WithDescription("Language-model tokens consumed by classification. Label: kind (prompt, completion)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tokens counter: %w", err)
	}

	vectorFallbacks, err := meter.Int64Counter(
		"portal_vector_fallbacks_total",
		metric.WithDescription("Searches that degraded to structured-only results after a vector index failure."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vector fallback counter: %w", err)
	}

	return &searchMetrics{
		searches:        searches,
		latency:         latency,
		tokens:          tokens,
		vectorFallbacks: vectorFallbacks,
	}, nil
}

func (m *searchMetrics) RecordSearch(ctx context.Context, intent, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("intent", intent),
		attribute.String("outcome", outcome),
	)
	m.searches.Add(ctx, 1, attrs)
	m.latency.Record(ctx, duration.Seconds(), attrs)
}

func (m *searchMetrics) RecordTokens(ctx context.Context, promptTokens, completionTokens int) {
	m.tokens.Add(ctx, int64(promptTokens), metric.WithAttributes(attribute.String("kind", "prompt")))
	m.tokens.Add(ctx, int64(completionTokens), metric.WithAttributes(attribute.String("kind", "completion")))
}

func (m *searchMetrics) RecordVectorFallback(ctx context.Context) {
	m.vectorFallbacks.Add(ctx, 1)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLogRecord is one append-only row per search request, consumed by the
// analytics interface. Never mutated after creation.
type UsageLogRecord struct {
	ID            uuid.UUID         `json:"id"`
	RequesterID   uuid.UUID         `json:"requester_id"`
	Query         string            `json:"query"`
	Intent        string            `json:"intent"`
	TargetPath    string            `json:"target_path"`
	Filters       map[string]string `json:"filters,omitempty"`
	SemanticQuery string            `json:"semantic_query,omitempty"`
	Usage         TokenUsage        `json:"usage"`
	ResultCount   int               `json:"result_count"`
	Confidence    float64           `json:"confidence"`
	CacheHit      bool              `json:"cache_hit"`
	LatencyMS     int64             `json:"latency_ms"`
	Error         *string           `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// RequesterUsage is one row of the per-requester analytics breakdown.
type RequesterUsage struct {
	RequesterID uuid.UUID `json:"requester_id"`
	Searches    int       `json:"searches"`
	Tokens      int       `json:"tokens"`
}

// SearchAnalytics is the time-windowed aggregate over UsageLogRecord rows.
type SearchAnalytics struct {
	From             time.Time        `json:"from"`
	To               time.Time        `json:"to"`
	TotalSearches    int              `json:"total_searches"`
	TotalTokens      int              `json:"total_tokens"`
	AvgLatencyMS     float64          `json:"avg_latency_ms"`
	CacheHitRate     float64          `json:"cache_hit_rate"`
	ByRequester      []RequesterUsage `json:"by_requester,omitempty"`
	IntentCounts     map[string]int   `json:"intent_counts,omitempty"`
	RecentQueries    []string         `json:"recent_queries,omitempty"`
	ErroredSearches  int              `json:"errored_searches"`
	AvgConfidence    float64          `json:"avg_confidence"`
	SemanticSearches int              `json:"semantic_searches"`
}

package models

import "time"

// TokenUsage is the token cost of one language-model call. Zero for cache
// hits and fallback classifications.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt + completion tokens.
func (u TokenUsage) Total() int { return u.PromptTokens + u.CompletionTokens }

// ClassificationResult is the classifier's structured output for one query.
// Ephemeral: summarized into a UsageLogRecord and serialized into the cache,
// never persisted directly.
type ClassificationResult struct {
	Intent           string            `json:"intent"`
	TargetPath       string            `json:"target_path"`
	Filters          map[string]string `json:"filters,omitempty"`
	RequiresSemantic bool              `json:"requires_semantic"`
	SemanticQuery    string            `json:"semantic_query,omitempty"`
	Confidence       float64           `json:"confidence"`
}

// CacheEntry is a durable classification cache row keyed by the hash of the
// normalized query plus requester identity. Hit count and last access are
// updated on every hit; rows past ExpiresAt are treated as misses.
type CacheEntry struct {
	Key          string               `json:"key"`
	Result       ClassificationResult `json:"result"`
	Usage        TokenUsage           `json:"usage"`
	CreatedAt    time.Time            `json:"created_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
	HitCount     int                  `json:"hit_count"`
	LastAccessAt time.Time            `json:"last_access_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/testvault/portal/internal/config"
	"github.com/testvault/portal/pkg/cache"
)

// Setting keys stored in the settings table. Unset keys fall back to the
// compiled defaults.
const (
	SettingSimilarityFloor  = "similarity_floor"
	SettingConfidenceFloor  = "confidence_floor"
	SettingSemanticWeight   = "semantic_weight"
	SettingCacheTTLSeconds  = "cache_ttl_seconds"
	SettingMaxFilterResults = "max_filter_results"
)

// settingsCacheTTL bounds how stale a settings read may be when another
// process wrote a value; local writes invalidate immediately.
const settingsCacheTTL = time.Minute

// SettingsStore is the persistence surface for runtime settings.
type SettingsStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// SettingsService serves the runtime-tunable retrieval knobs with a cached
// read path. Reads never fail: a store error falls back to defaults.
type SettingsService struct {
	store SettingsStore
	cache *cache.LoaderCache[string, map[string]string]
}

// NewSettingsService creates a SettingsService backed by store.
func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{
		store: store,
		cache: cache.NewLoaderCache[string, map[string]string](1, settingsCacheTTL, func(k string) string { return k }),
	}
}

// All returns every stored setting. On a store failure an empty map is
// returned so callers land on defaults.
func (s *SettingsService) All(ctx context.Context) map[string]string {
	values, err := s.cache.Get(ctx, "settings", func(ctx context.Context, _ string) (map[string]string, error) {
		return s.store.GetAll(ctx)
	})
	if err != nil {
		slog.Warn("settings read failed, using defaults", "error", err)

		return map[string]string{}
	}

	return values
}

// Set stores one setting and invalidates the read cache.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		return err
	}

	s.cache.InvalidateAll()

	return nil
}

// SimilarityFloor returns the default similarity floor for long semantic
// queries.
func (s *SettingsService) SimilarityFloor(ctx context.Context) float64 {
	return s.float(ctx, SettingSimilarityFloor, config.DefaultSimilarityFloor)
}

// ConfidenceFloor returns the classification confidence below which the
// search responds with suggestions instead of navigating.
func (s *SettingsService) ConfidenceFloor(ctx context.Context) float64 {
	return s.float(ctx, SettingConfidenceFloor, config.DefaultConfidenceFloor)
}

// SemanticWeight returns the vector component weight used by the merge
// ranker.
func (s *SettingsService) SemanticWeight(ctx context.Context) float64 {
	return s.float(ctx, SettingSemanticWeight, config.DefaultSemanticWeight)
}

// CacheTTL returns the classification cache TTL.
func (s *SettingsService) CacheTTL(ctx context.Context) time.Duration {
	raw, ok := s.All(ctx)[SettingCacheTTLSeconds]
	if !ok {
		return config.DefaultCacheTTL
	}

	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		slog.Warn("invalid setting value, using default", "key", SettingCacheTTLSeconds, "value", raw)

		return config.DefaultCacheTTL
	}

	return time.Duration(secs) * time.Second
}

// MaxFilterResults returns the structured filter result cap.
func (s *SettingsService) MaxFilterResults(ctx context.Context) int {
	raw, ok := s.All(ctx)[SettingMaxFilterResults]
	if !ok {
		return config.DefaultMaxFilterResults
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("invalid setting value, using default", "key", SettingMaxFilterResults, "value", raw)

		return config.DefaultMaxFilterResults
	}

	return n
}

func (s *SettingsService) float(ctx context.Context, key string, fallback float64) float64 {
	raw, ok := s.All(ctx)[key]
	if !ok {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		slog.Warn("invalid setting value, using default", "key", key, "value", raw)

		return fallback
	}

	return v
}

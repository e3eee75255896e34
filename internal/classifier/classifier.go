package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/testvault/portal/internal/apperrors"
	"github.com/testvault/portal/internal/models"
)

// ClassificationSource describes how a classification was produced.
type ClassificationSource string

const (
	SourceModel       ClassificationSource = "model"
	SourceMemoryCache ClassificationSource = "memory_cache"
	SourceStoreCache  ClassificationSource = "store_cache"
	SourceFallback    ClassificationSource = "fallback"
	SourceRateLimited ClassificationSource = "rate_limited"
)

// Classification is a classifier result plus provenance and token cost.
type Classification struct {
	Result models.ClassificationResult
	Source ClassificationSource
	Usage  models.TokenUsage
}

// CompletionClient is the LLM surface the classifier needs.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, models.TokenUsage, error)
}

// ContextSource supplies the navigation targets and lookup data rendered
// into the prompt.
type ContextSource interface {
	NavigationTargets(ctx context.Context) ([]models.NavigationTarget, error)
	Modules(ctx context.Context) ([]models.ModuleRef, error)
	Users(ctx context.Context) ([]models.UserRef, error)
	CurrentRelease(ctx context.Context) (*models.ReleaseRef, error)
	PreviousRelease(ctx context.Context) (*models.ReleaseRef, error)
}

// DurableCache is the persistent classification cache tier.
type DurableCache interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, key string, result models.ClassificationResult, usage models.TokenUsage, ttl time.Duration) error
	Touch(ctx context.Context, key string) error
}

// TokenMetrics records token spend for model calls. May be nil.
type TokenMetrics interface {
	RecordTokens(ctx context.Context, promptTokens, completionTokens int)
}

// Params configures a Classifier. Zero values fall back to the defaults
// noted per field.
type Params struct {
	Client  CompletionClient
	Context ContextSource
	Cache   DurableCache // optional durable tier
	Metrics TokenMetrics // optional

	CacheTTL        time.Duration // default 1h
	MemCacheLen     int           // default 512
	Timeout         time.Duration // default 10s, per model call
	PerMinute       int           // per-requester model calls, default 20
	GlobalPerSecond float64       // all-requester model call rate, default 5

	Now func() time.Time // test clock, default time.Now
}

// Classifier orchestrates normalization, the two cache tiers, rate limiting,
// the model call, and the rule fallback.
type Classifier struct {
	client  CompletionClient
	source  ContextSource
	durable DurableCache
	metrics TokenMetrics

	mem     *expirable.LRU[string, models.CacheEntry]
	perUser *slidingWindowLimiter
	global  *rate.Limiter

	cacheTTL time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// New creates a Classifier from params. Client and Context are required.
func New(p Params) *Classifier {
	if p.CacheTTL <= 0 {
		p.CacheTTL = time.Hour
	}

	if p.MemCacheLen <= 0 {
		p.MemCacheLen = 512
	}

	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}

	if p.PerMinute <= 0 {
		p.PerMinute = 20
	}

	if p.GlobalPerSecond <= 0 {
		p.GlobalPerSecond = 5
	}

	if p.Now == nil {
		p.Now = time.Now
	}

	return &Classifier{
		client:   p.Client,
		source:   p.Context,
		durable:  p.Cache,
		metrics:  p.Metrics,
		mem:      expirable.NewLRU[string, models.CacheEntry](p.MemCacheLen, nil, p.CacheTTL),
		perUser:  newSlidingWindowLimiter(p.PerMinute, p.Now),
		global:   rate.NewLimiter(rate.Limit(p.GlobalPerSecond), 1),
		cacheTTL: p.CacheTTL,
		timeout:  p.Timeout,
		now:      p.Now,
	}
}

// NormalizeQuery lowercases, trims, and collapses runs of whitespace. Two
// queries that normalize identically share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// CacheKey derives the cache key for a normalized query and requester.
// Requester identity is part of the key because symbolic filter values like
// "me" resolve per requester downstream.
func CacheKey(normalized, requesterID string) string {
	sum := sha256.Sum256([]byte(normalized + "|" + requesterID))

	return hex.EncodeToString(sum[:])
}

// Classify resolves query for requesterID. It never returns an error for
// model or parse failures; those degrade to the rule fallback so the caller
// always gets a usable classification.
func (c *Classifier) Classify(ctx context.Context, query, requesterID string) (Classification, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return Classification{}, errors.New("classify: empty query")
	}

	key := CacheKey(normalized, requesterID)

	if entry, ok := c.mem.Get(key); ok && !entry.Expired(c.now()) {
		if c.durable != nil {
			// Best effort: durable hit counts should include memory-tier hits.
			if err := c.durable.Touch(ctx, key); err != nil {
				slog.Debug("classifier: cache touch failed", "error", err)
			}
		}

		// Usage stays zero: the model cost was attributed when the entry was
		// written, a hit spends nothing.
		return Classification{Result: entry.Result, Source: SourceMemoryCache}, nil
	}

	if c.durable != nil {
		entry, err := c.durable.Get(ctx, key)

		switch {
		case err == nil:
			c.mem.Add(key, *entry)

			return Classification{Result: entry.Result, Source: SourceStoreCache}, nil
		case !errors.Is(err, apperrors.ErrNotFound):
			slog.Warn("classifier: durable cache read failed", "error", err)
		}
	}

	if !c.perUser.Allow(requesterID) {
		result := classifyByRules(normalized)
		applyOverrides(&result, normalized)

		slog.Info("classifier: requester over model budget, using rules",
			"requester_id", requesterID)

		return Classification{Result: result, Source: SourceRateLimited}, nil
	}

	result, usage, err := c.classifyWithModel(ctx, strings.TrimSpace(query))
	if err != nil {
		if ctx.Err() != nil {
			return Classification{}, ctx.Err()
		}

		slog.Warn("classifier: model classification failed, using rules",
			"error", err)

		result := classifyByRules(normalized)
		applyOverrides(&result, normalized)

		return Classification{Result: result, Source: SourceFallback}, nil
	}

	applyOverrides(&result, normalized)

	entry := models.CacheEntry{
		Key:       key,
		Result:    result,
		Usage:     usage,
		CreatedAt: c.now(),
		ExpiresAt: c.now().Add(c.cacheTTL),
	}
	c.mem.Add(key, entry)

	if c.durable != nil {
		if err := c.durable.Put(ctx, key, result, usage, c.cacheTTL); err != nil {
			slog.Warn("classifier: durable cache write failed", "error", err)
		}
	}

	return Classification{Result: result, Source: SourceModel, Usage: usage}, nil
}

// classifyWithModel builds the prompt, waits for the global rate budget, and
// calls the model. The query keeps its original casing here; normalization
// is for cache keys and rule matching only. Only model-produced results are
// cached; rule fallbacks are cheap to recompute and would otherwise pin
// low-quality answers.
func (c *Classifier) classifyWithModel(ctx context.Context, query string) (models.ClassificationResult, models.TokenUsage, error) {
	pc, err := c.promptContext(ctx)
	if err != nil {
		return models.ClassificationResult{}, models.TokenUsage{}, err
	}

	if err := c.global.Wait(ctx); err != nil {
		return models.ClassificationResult{}, models.TokenUsage{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, usage, err := c.client.Complete(callCtx, systemPrompt, buildUserPrompt(pc, query))
	if err != nil {
		return models.ClassificationResult{}, models.TokenUsage{}, err
	}

	if c.metrics != nil {
		c.metrics.RecordTokens(ctx, usage.PromptTokens, usage.CompletionTokens)
	}

	result, err := parseCompletion(content)
	if err != nil {
		return models.ClassificationResult{}, models.TokenUsage{}, err
	}

	if result.TargetPath == "" {
		if path, ok := defaultPaths[result.Intent]; ok {
			result.TargetPath = path
		}
	}

	return result, usage, nil
}

func (c *Classifier) promptContext(ctx context.Context) (promptContext, error) {
	targets, err := c.source.NavigationTargets(ctx)
	if err != nil {
		return promptContext{}, err
	}

	modules, err := c.source.Modules(ctx)
	if err != nil {
		return promptContext{}, err
	}

	users, err := c.source.Users(ctx)
	if err != nil {
		return promptContext{}, err
	}

	// Release lookups are optional prompt context; a portal with no releases
	// still classifies fine.
	current, err := c.source.CurrentRelease(ctx)
	if err != nil {
		slog.Debug("classifier: current release unavailable", "error", err)
	}

	previous, err := c.source.PreviousRelease(ctx)
	if err != nil {
		slog.Debug("classifier: previous release unavailable", "error", err)
	}

	return promptContext{
		Targets:         targets,
		Modules:         modules,
		Users:           users,
		CurrentRelease:  current,
		PreviousRelease: previous,
	}, nil
}

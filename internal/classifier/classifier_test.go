package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testvault/portal/internal/apperrors"
	"github.com/testvault/portal/internal/models"
)

type mockCompletion struct {
	completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, models.TokenUsage, error)
	calls        atomic.Int64
}

func (m *mockCompletion) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, models.TokenUsage, error) {
	m.calls.Add(1)

	return m.completeFunc(ctx, systemPrompt, userPrompt)
}

type mockContextSource struct {
	targets []models.NavigationTarget
	modules []models.ModuleRef
	users   []models.UserRef
	current *models.ReleaseRef
}

func (m *mockContextSource) NavigationTargets(context.Context) ([]models.NavigationTarget, error) {
	return m.targets, nil
}

func (m *mockContextSource) Modules(context.Context) ([]models.ModuleRef, error) {
	return m.modules, nil
}

func (m *mockContextSource) Users(context.Context) ([]models.UserRef, error) {
	return m.users, nil
}

func (m *mockContextSource) CurrentRelease(context.Context) (*models.ReleaseRef, error) {
	return m.current, nil
}

func (m *mockContextSource) PreviousRelease(context.Context) (*models.ReleaseRef, error) {
	return nil, nil
}

type mockDurableCache struct {
	getFunc   func(ctx context.Context, key string) (*models.CacheEntry, error)
	putFunc   func(ctx context.Context, key string, result models.ClassificationResult, usage models.TokenUsage, ttl time.Duration) error
	touchFunc func(ctx context.Context, key string) error

	puts    atomic.Int64
	touches atomic.Int64
}

func (m *mockDurableCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if m.getFunc == nil {
		return nil, apperrors.ErrNotFound
	}

	return m.getFunc(ctx, key)
}

func (m *mockDurableCache) Put(ctx context.Context, key string, result models.ClassificationResult, usage models.TokenUsage, ttl time.Duration) error {
	m.puts.Add(1)

	if m.putFunc == nil {
		return nil
	}

	return m.putFunc(ctx, key, result, usage, ttl)
}

func (m *mockDurableCache) Touch(ctx context.Context, key string) error {
	m.touches.Add(1)

	if m.touchFunc == nil {
		return nil
	}

	return m.touchFunc(ctx, key)
}

func modelJSON(intent, path, filters string, semantic bool, semanticQuery string, confidence float64) string {
	return fmt.Sprintf(
		`{"intent":%q,"target_path":%q,"filters":%s,"requires_semantic":%t,"semantic_query":%q,"confidence":%g}`,
		intent, path, filters, semantic, semanticQuery, confidence,
	)
}

func newTestClassifier(t *testing.T, client *mockCompletion, cache DurableCache, p Params) *Classifier {
	t.Helper()

	p.Client = client
	p.Context = &mockContextSource{}
	p.Cache = cache

	return New(p)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	t.Run("model result is parsed and cached in both tiers", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(_ context.Context, _, userPrompt string) (string, models.TokenUsage, error) {
				// The prompt carries the query as typed; lowercasing is for
				// cache keys and rule matching only.
				assert.Contains(t, userPrompt, "Failed login tests")

				return modelJSON(IntentViewTestCases, "/test-cases", `{"status":"failed"}`, false, "", 0.85),
					models.TokenUsage{PromptTokens: 120, CompletionTokens: 40}, nil
			},
		}
		cache := &mockDurableCache{}
		c := newTestClassifier(t, client, cache, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "Failed login tests", "user-1")
		require.NoError(t, err)

		assert.Equal(t, SourceModel, got.Source)
		assert.Equal(t, IntentViewTestCases, got.Result.Intent)
		assert.Equal(t, "/test-cases", got.Result.TargetPath)
		assert.Equal(t, "failed", got.Result.Filters["status"])
		assert.Equal(t, 120, got.Usage.PromptTokens)
		assert.Equal(t, int64(1), cache.puts.Load())

		// Second call with different casing and spacing hits memory.
		again, err := c.Classify(ctx, "  failed   LOGIN tests ", "user-1")
		require.NoError(t, err)
		assert.Equal(t, SourceMemoryCache, again.Source)
		assert.Equal(t, got.Result, again.Result)
		assert.Zero(t, again.Usage.Total(), "a cache hit spends no tokens")
		assert.Equal(t, int64(1), client.calls.Load())
		assert.Equal(t, int64(1), cache.touches.Load(), "memory hits count against durable accounting")
	})

	t.Run("different requesters do not share cache entries", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				return modelJSON(IntentViewIssues, "/issues", `{"assignee":"me"}`, false, "", 0.85),
					models.TokenUsage{}, nil
			},
		}
		c := newTestClassifier(t, client, &mockDurableCache{}, Params{GlobalPerSecond: 1000})

		_, err := c.Classify(ctx, "my issues", "user-1")
		require.NoError(t, err)
		_, err = c.Classify(ctx, "my issues", "user-2")
		require.NoError(t, err)

		assert.Equal(t, int64(2), client.calls.Load())
	})

	t.Run("durable hit is promoted to memory", func(t *testing.T) {
		now := time.Now()
		entry := &models.CacheEntry{
			Result: models.ClassificationResult{
				Intent:     IntentViewStories,
				TargetPath: "/stories",
				Filters:    map[string]string{},
				Confidence: 0.9,
			},
			Usage:     models.TokenUsage{PromptTokens: 120, CompletionTokens: 40},
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}
		cache := &mockDurableCache{
			getFunc: func(context.Context, string) (*models.CacheEntry, error) { return entry, nil },
		}
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				t.Fatal("model must not be called on a durable hit")

				return "", models.TokenUsage{}, nil
			},
		}
		c := newTestClassifier(t, client, cache, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "open stories", "user-1")
		require.NoError(t, err)
		assert.Equal(t, SourceStoreCache, got.Source)
		assert.Zero(t, got.Usage.Total(), "the stored cost is not re-attributed on a hit")

		// Next lookup is served from memory without another durable read.
		cache.getFunc = func(context.Context, string) (*models.CacheEntry, error) {
			t.Fatal("durable tier must not be read after promotion")

			return nil, nil
		}

		got, err = c.Classify(ctx, "open stories", "user-1")
		require.NoError(t, err)
		assert.Equal(t, SourceMemoryCache, got.Source)
	})

	t.Run("model failure degrades to the rule table", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				return "", models.TokenUsage{}, errors.New("upstream unavailable")
			},
		}
		cache := &mockDurableCache{}
		c := newTestClassifier(t, client, cache, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "show me the bugs", "user-1")
		require.NoError(t, err)

		assert.Equal(t, SourceFallback, got.Source)
		assert.Equal(t, IntentViewIssues, got.Result.Intent)
		assert.Equal(t, "current", got.Result.Filters["release"])
		assert.InDelta(t, FallbackConfidence, got.Result.Confidence, 1e-9)
		assert.Equal(t, int64(0), cache.puts.Load(), "fallback results are not cached")
	})

	t.Run("unparseable completion degrades to the rule table", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				return "I think you want the test cases page.", models.TokenUsage{PromptTokens: 80}, nil
			},
		}
		c := newTestClassifier(t, client, &mockDurableCache{}, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "regression tests", "user-1")
		require.NoError(t, err)

		assert.Equal(t, SourceFallback, got.Source)
		assert.Equal(t, IntentViewTestCases, got.Result.Intent)
	})

	t.Run("per-requester limit falls back without calling the model", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				return modelJSON(IntentViewIssues, "/issues", `{}`, false, "", 0.85), models.TokenUsage{}, nil
			},
		}
		c := newTestClassifier(t, client, &mockDurableCache{}, Params{PerMinute: 2, GlobalPerSecond: 1000})

		_, err := c.Classify(ctx, "bugs one", "user-1")
		require.NoError(t, err)
		_, err = c.Classify(ctx, "bugs two", "user-1")
		require.NoError(t, err)

		got, err := c.Classify(ctx, "bugs three", "user-1")
		require.NoError(t, err)
		assert.Equal(t, SourceRateLimited, got.Source)
		assert.Equal(t, IntentViewIssues, got.Result.Intent)
		assert.Equal(t, int64(2), client.calls.Load())

		// A different requester still has budget.
		other, err := c.Classify(ctx, "bugs three", "user-2")
		require.NoError(t, err)
		assert.Equal(t, SourceModel, other.Source)
	})

	t.Run("trigger phrase forces semantic search and synthesizes a query", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				// Model misses the semantic flag; the override must set it.
				return modelJSON(IntentViewIssues, "/issues", `{}`, false, "", 0.85), models.TokenUsage{}, nil
			},
		}
		c := newTestClassifier(t, client, &mockDurableCache{}, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "issues about duplicate ACH transfers", "user-1")
		require.NoError(t, err)

		assert.True(t, got.Result.RequiresSemantic)
		assert.Contains(t, got.Result.SemanticQuery, "duplicate ach transfers")
		assert.Contains(t, got.Result.SemanticQuery, models.EntityKindIssue.SemanticSuffix())
	})

	t.Run("dashboard intent never carries a semantic query", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				return modelJSON(IntentViewDashboard, "/dashboard", `{}`, true, "overview", 0.85), models.TokenUsage{}, nil
			},
		}
		c := newTestClassifier(t, client, &mockDurableCache{}, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "project overview", "user-1")
		require.NoError(t, err)

		assert.False(t, got.Result.RequiresSemantic)
		assert.Empty(t, got.Result.SemanticQuery)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		c := newTestClassifier(t, &mockCompletion{}, nil, Params{})

		_, err := c.Classify(ctx, "   ", "user-1")
		assert.Error(t, err)
	})

	t.Run("works without a durable tier", func(t *testing.T) {
		client := &mockCompletion{
			completeFunc: func(context.Context, string, string) (string, models.TokenUsage, error) {
				return modelJSON(IntentViewReleases, "/releases", `{}`, false, "", 0.85), models.TokenUsage{}, nil
			},
		}
		c := newTestClassifier(t, client, nil, Params{GlobalPerSecond: 1000})

		got, err := c.Classify(ctx, "upcoming releases", "user-1")
		require.NoError(t, err)
		assert.Equal(t, SourceModel, got.Source)

		got, err = c.Classify(ctx, "upcoming releases", "user-1")
		require.NoError(t, err)
		assert.Equal(t, SourceMemoryCache, got.Source)
	})
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "failed login tests", NormalizeQuery("  Failed   LOGIN\ttests "))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("failed tests", "user-1")
	b := CacheKey("failed tests", "user-2")
	c := CacheKey("failed tests", "user-1")

	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b, "requester identity is part of the key")
	assert.Len(t, a, 64)
}

func TestSlidingWindowLimiterBasic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	l := newSlidingWindowLimiter(2, clock)

	assert.True(t, l.Allow("u"))
	assert.True(t, l.Allow("u"))
	assert.False(t, l.Allow("u"))
	assert.True(t, l.Allow("other"))

	// The window slides: old attempts expire after a minute.
	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("u"))
}

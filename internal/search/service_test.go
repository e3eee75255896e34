package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testvault/portal/internal/classifier"
	"github.com/testvault/portal/internal/models"
)

type stubClassifier struct {
	result classifier.Classification
	err    error
}

func (s *stubClassifier) Classify(context.Context, string, string) (classifier.Classification, error) {
	return s.result, s.err
}

type stubVectors struct {
	results []models.EntityWithScore
	err     error
	query   string
	allow   []uuid.UUID
	calls   int
}

func (s *stubVectors) Search(
	_ context.Context, _ models.EntityKind, query string, allowIDs []uuid.UUID,
) ([]models.EntityWithScore, error) {
	s.calls++
	s.query = query
	s.allow = allowIDs

	return s.results, s.err
}

type stubNavigation struct {
	targets []models.NavigationTarget
	modules []models.ModuleRef
}

func (s *stubNavigation) NavigationTargets(context.Context) ([]models.NavigationTarget, error) {
	return s.targets, nil
}

func (s *stubNavigation) Modules(context.Context) ([]models.ModuleRef, error) {
	return s.modules, nil
}

type recordingUsage struct {
	records []models.UsageLogRecord
}

func (r *recordingUsage) Record(_ context.Context, record models.UsageLogRecord) {
	r.records = append(r.records, record)
}

func classified(intent, path string, filters map[string]string, confidence float64) classifier.Classification {
	if filters == nil {
		filters = map[string]string{}
	}

	return classifier.Classification{
		Source: classifier.SourceModel,
		Result: models.ClassificationResult{
			Intent:     intent,
			TargetPath: path,
			Filters:    filters,
			Confidence: confidence,
		},
	}
}

func newTestService(cls classifier.Classification, filterer *mockFilterer, vectors *stubVectors, usage *recordingUsage) *Service {
	nav := &stubNavigation{
		targets: []models.NavigationTarget{
			{Name: "Issues", PathTemplate: "/issues", Active: true, ExampleQueries: []string{"open issues"}},
			{Name: "Retired", PathTemplate: "/old", Active: false},
		},
	}

	var idx SemanticIndex
	if vectors != nil {
		idx = vectors
	}

	return NewService(ServiceParams{
		Classifier: &stubClassifier{result: cls},
		Filters:    NewFilterEngine(filterer, &mockResolver{}, 0),
		Vectors:    idx,
		Navigation: nav,
		Usage:      usage,
	})
}

func TestServiceSearch(t *testing.T) {
	ctx := context.Background()
	requester := uuid.New()

	t.Run("below the confidence floor yields suggestions and no navigation", func(t *testing.T) {
		usage := &recordingUsage{}
		svc := newTestService(
			classified(classifier.IntentViewIssues, "/issues", nil, 0.3),
			&mockFilterer{}, nil, usage,
		)

		got, err := svc.Search(ctx, Request{Query: "something vague", RequesterID: requester})
		require.NoError(t, err)

		assert.False(t, got.Success)
		assert.Empty(t, got.TargetPath)
		require.NotEmpty(t, got.Suggestions)
		assert.Equal(t, "Issues", got.Suggestions[0].Label)

		require.Len(t, usage.records, 1)
		assert.Equal(t, "something vague", usage.records[0].Query)
	})

	t.Run("unknown intent is treated as low confidence", func(t *testing.T) {
		svc := newTestService(
			classified(classifier.IntentUnknown, "", nil, 0.9),
			&mockFilterer{}, nil, &recordingUsage{},
		)

		got, err := svc.Search(ctx, Request{Query: "gibberish", RequesterID: requester})
		require.NoError(t, err)
		assert.False(t, got.Success)
	})

	t.Run("structured navigation embeds capped ids", func(t *testing.T) {
		matched := ids(60)
		usage := &recordingUsage{}
		svc := newTestService(
			classified(classifier.IntentViewIssues, "/issues", map[string]string{"status": "open"}, 0.9),
			&mockFilterer{ids: matched}, nil, usage,
		)

		got, err := svc.Search(ctx, Request{Query: "open issues", RequesterID: requester})
		require.NoError(t, err)

		assert.True(t, got.Success)
		assert.Equal(t, "/issues", got.TargetPath)
		assert.Equal(t, 60, got.ResultCount)
		assert.Len(t, got.EntityIDs, MaxNavigationIDs)
		assert.Equal(t, "open", got.QueryParams["status"])
		assert.NotEmpty(t, got.QueryParams["ids"])

		require.Len(t, usage.records, 1)
		assert.Equal(t, 60, usage.records[0].ResultCount)
	})

	t.Run("non-entity intent navigates without a result set", func(t *testing.T) {
		filterer := &mockFilterer{ids: ids(3)}
		svc := newTestService(
			classified(classifier.IntentViewDashboard, "/dashboard", nil, 0.9),
			filterer, nil, &recordingUsage{},
		)

		got, err := svc.Search(ctx, Request{Query: "dashboard", RequesterID: requester})
		require.NoError(t, err)

		assert.True(t, got.Success)
		assert.Equal(t, "/dashboard", got.TargetPath)
		assert.Empty(t, got.EntityIDs)
		assert.Zero(t, filterer.lastLimit, "filter engine must not run for non-entity pages")
	})

	t.Run("current release required but absent yields guidance", func(t *testing.T) {
		svc := newTestService(
			classified(classifier.IntentViewIssues, "/issues", map[string]string{"release": "current"}, 0.9),
			&mockFilterer{}, nil, &recordingUsage{},
		)

		got, err := svc.Search(ctx, Request{Query: "issues in the current release", RequesterID: requester})
		require.NoError(t, err)

		assert.False(t, got.Success)
		assert.Contains(t, got.Message, "release")
		require.NotEmpty(t, got.Suggestions)
		assert.Equal(t, "/issues", got.Suggestions[len(got.Suggestions)-1].Path)
	})

	t.Run("semantic results merge with structured matches", func(t *testing.T) {
		structured := ids(2)
		semanticHit := uuid.New()

		cls := classified(classifier.IntentViewTestCases, "/test-cases",
			map[string]string{"status": "failed"}, 0.9)
		cls.Result.RequiresSemantic = true
		cls.Result.SemanticQuery = "ach transfer validation test cases"

		vectors := &stubVectors{results: []models.EntityWithScore{{ID: semanticHit, Score: 0.9}}}
		svc := newTestService(cls, &mockFilterer{ids: structured}, vectors, &recordingUsage{})

		got, err := svc.Search(ctx, Request{Query: "tests about ach transfers", RequesterID: requester})
		require.NoError(t, err)

		assert.Equal(t, 1, vectors.calls)
		assert.Equal(t, cls.Result.SemanticQuery, vectors.query)
		assert.Equal(t, structured, vectors.allow, "structured predicates restrict the vector scan")
		assert.Equal(t, 3, got.ResultCount)
		assert.Contains(t, got.EntityIDs, semanticHit)
	})

	t.Run("vector failure degrades to structured-only", func(t *testing.T) {
		structured := ids(2)

		cls := classified(classifier.IntentViewIssues, "/issues", nil, 0.9)
		cls.Result.RequiresSemantic = true
		cls.Result.SemanticQuery = "duplicate payment issues"

		vectors := &stubVectors{err: errors.New("index unavailable")}
		svc := newTestService(cls, &mockFilterer{ids: structured}, vectors, &recordingUsage{})

		got, err := svc.Search(ctx, Request{Query: "issues about duplicate payments", RequesterID: requester})
		require.NoError(t, err)

		assert.True(t, got.Success)
		assert.Equal(t, structured, got.EntityIDs)
	})

	t.Run("fallback classification is logged with zero token cost", func(t *testing.T) {
		usage := &recordingUsage{}

		cls := classifier.Classification{
			Source: classifier.SourceFallback,
			Result: models.ClassificationResult{
				Intent:     classifier.IntentViewReleases,
				TargetPath: "/releases",
				Filters:    map[string]string{},
				Confidence: classifier.FallbackConfidence,
			},
		}

		svc := newTestService(cls, &mockFilterer{}, nil, usage)

		got, err := svc.Search(ctx, Request{Query: "show all releases", RequesterID: requester})
		require.NoError(t, err)

		// Rule-table matches navigate despite their fixed low confidence.
		assert.True(t, got.Success)
		assert.Equal(t, "/releases", got.TargetPath)

		require.Len(t, usage.records, 1)
		assert.Zero(t, usage.records[0].Usage.Total())
	})
}

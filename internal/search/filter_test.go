package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/repository"
)

type mockFilterer struct {
	lastFilters repository.EntityFilters
	lastLimit   int
	ids         []uuid.UUID
}

func (m *mockFilterer) FilterIDs(
	_ context.Context, _ models.EntityKind, filters repository.EntityFilters, limit int,
) ([]uuid.UUID, error) {
	m.lastFilters = filters
	m.lastLimit = limit

	return m.ids, nil
}

type mockResolver struct {
	moduleID  *uuid.UUID
	userID    *uuid.UUID
	releaseID *uuid.UUID
	current   *models.ReleaseRef
}

func (m *mockResolver) ResolveModuleName(context.Context, string) (*uuid.UUID, error) {
	return m.moduleID, nil
}

func (m *mockResolver) ResolveUserName(context.Context, string) (*uuid.UUID, error) {
	return m.userID, nil
}

func (m *mockResolver) ResolveReleaseVersion(context.Context, string) (*uuid.UUID, error) {
	return m.releaseID, nil
}

func (m *mockResolver) CurrentRelease(context.Context) (*models.ReleaseRef, error) {
	return m.current, nil
}

func TestFilterEngineResolve(t *testing.T) {
	ctx := context.Background()
	requester := uuid.New()

	t.Run("direct fields map to predicates", func(t *testing.T) {
		f := NewFilterEngine(&mockFilterer{}, &mockResolver{}, 0)

		got, err := f.Resolve(ctx, map[string]string{
			"status":   "failed",
			"priority": "high",
			"keyword":  "login",
		}, requester.String())
		require.NoError(t, err)

		require.NotNil(t, got.Filters.Status)
		assert.Equal(t, "failed", *got.Filters.Status)
		require.NotNil(t, got.Filters.Priority)
		assert.Equal(t, "high", *got.Filters.Priority)
		require.NotNil(t, got.Filters.TitleContains)
		assert.Equal(t, "login", *got.Filters.TitleContains)
		assert.Empty(t, got.Ignored)
	})

	t.Run("assignee me resolves to the requester", func(t *testing.T) {
		f := NewFilterEngine(&mockFilterer{}, &mockResolver{}, 0)

		got, err := f.Resolve(ctx, map[string]string{"assignee": "me"}, requester.String())
		require.NoError(t, err)

		require.NotNil(t, got.Filters.AssigneeID)
		assert.Equal(t, requester, *got.Filters.AssigneeID)
	})

	t.Run("release current resolves to the active release", func(t *testing.T) {
		rel := models.ReleaseRef{ID: uuid.New(), Version: "3.2.0"}
		f := NewFilterEngine(&mockFilterer{}, &mockResolver{current: &rel}, 0)

		got, err := f.Resolve(ctx, map[string]string{"release": "current"}, requester.String())
		require.NoError(t, err)

		require.NotNil(t, got.Filters.ReleaseID)
		assert.Equal(t, rel.ID, *got.Filters.ReleaseID)
		assert.False(t, got.NeedsCurrentRelease)
	})

	t.Run("release current with no active release is reported not dropped", func(t *testing.T) {
		f := NewFilterEngine(&mockFilterer{}, &mockResolver{}, 0)

		got, err := f.Resolve(ctx, map[string]string{"release": "current"}, requester.String())
		require.NoError(t, err)

		assert.True(t, got.NeedsCurrentRelease)
		assert.Nil(t, got.Filters.ReleaseID)
	})

	t.Run("unrecognized and unresolvable fields are ignored", func(t *testing.T) {
		f := NewFilterEngine(&mockFilterer{}, &mockResolver{}, 0)

		got, err := f.Resolve(ctx, map[string]string{
			"sprint": "12",      // unknown field
			"module": "no such", // resolves to nothing
			"status": "passed",  // still applied
		}, requester.String())
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"sprint", "module"}, got.Ignored)
		require.NotNil(t, got.Filters.Status)
	})

	t.Run("empty values are skipped", func(t *testing.T) {
		f := NewFilterEngine(&mockFilterer{}, &mockResolver{}, 0)

		got, err := f.Resolve(ctx, map[string]string{"status": "  "}, requester.String())
		require.NoError(t, err)

		assert.Nil(t, got.Filters.Status)
	})
}

func TestFilterEngineFilter(t *testing.T) {
	ctx := context.Background()
	matched := ids(3)

	filterer := &mockFilterer{ids: matched}
	f := NewFilterEngine(filterer, &mockResolver{}, 25)

	got, resolved, err := f.Filter(ctx, models.EntityKindIssue,
		map[string]string{"status": "open"}, uuid.New().String())
	require.NoError(t, err)

	assert.Equal(t, matched, got)
	assert.Equal(t, 25, filterer.lastLimit)
	require.NotNil(t, resolved.Filters.Status)
	assert.Equal(t, "open", *filterer.lastFilters.Status)
}

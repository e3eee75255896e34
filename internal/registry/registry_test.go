package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testvault/portal/internal/models"
)

type mockNavSource struct {
	listFunc func(ctx context.Context) ([]models.NavigationTarget, error)
	calls    int
}

func (m *mockNavSource) ListActive(ctx context.Context) ([]models.NavigationTarget, error) {
	m.calls++
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}

	return nil, nil
}

type mockLookupSource struct {
	modules  []models.ModuleRef
	users    []models.UserRef
	releases []models.ReleaseRef
	calls    int
}

func (m *mockLookupSource) ListModules(context.Context) ([]models.ModuleRef, error) {
	m.calls++

	return m.modules, nil
}

func (m *mockLookupSource) ListActiveUsers(context.Context) ([]models.UserRef, error) {
	m.calls++

	return m.users, nil
}

func (m *mockLookupSource) ListReleases(context.Context) ([]models.ReleaseRef, error) {
	m.calls++

	return m.releases, nil
}

func dateAt(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}

	return &t
}

func newTestRegistry(lookup *mockLookupSource) *Registry {
	return New(Params{
		NavigationSource: &mockNavSource{},
		LookupSource:     lookup,
		Now:              func() time.Time { return *dateAt("2025-06-15") },
	})
}

func TestRegistry_Caching(t *testing.T) {
	nav := &mockNavSource{
		listFunc: func(context.Context) ([]models.NavigationTarget, error) {
			return []models.NavigationTarget{{Key: "view-test-cases"}}, nil
		},
	}
	r := New(Params{NavigationSource: nav, LookupSource: &mockLookupSource{}})

	for range 3 {
		targets, err := r.NavigationTargets(context.Background())
		require.NoError(t, err)
		assert.Len(t, targets, 1)
	}

	assert.Equal(t, 1, nav.calls, "getter should serve from cache within TTL")

	r.Invalidate()

	_, err := r.NavigationTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, nav.calls, "invalidate should force a reload")
}

func TestRegistry_CurrentRelease(t *testing.T) {
	t.Run("prefers in-progress with most recent target date", func(t *testing.T) {
		a := models.ReleaseRef{ID: uuid.New(), Version: "2.0", Status: models.ReleaseStatusInProgress, TargetDate: dateAt("2025-07-01")}
		b := models.ReleaseRef{ID: uuid.New(), Version: "2.1", Status: models.ReleaseStatusInProgress, TargetDate: dateAt("2025-08-01")}
		c := models.ReleaseRef{ID: uuid.New(), Version: "1.9", Status: models.ReleaseStatusReleased, TargetDate: dateAt("2025-05-01")}

		r := newTestRegistry(&mockLookupSource{releases: []models.ReleaseRef{a, b, c}})

		current, err := r.CurrentRelease(context.Background())
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, b.ID, current.ID)
	})

	t.Run("falls back to nearest future target date", func(t *testing.T) {
		far := models.ReleaseRef{ID: uuid.New(), Version: "3.0", Status: models.ReleaseStatusPlanned, TargetDate: dateAt("2025-12-01")}
		near := models.ReleaseRef{ID: uuid.New(), Version: "2.5", Status: models.ReleaseStatusPlanned, TargetDate: dateAt("2025-07-01")}
		past := models.ReleaseRef{ID: uuid.New(), Version: "2.0", Status: models.ReleaseStatusReleased, TargetDate: dateAt("2025-01-01")}

		r := newTestRegistry(&mockLookupSource{releases: []models.ReleaseRef{far, near, past}})

		current, err := r.CurrentRelease(context.Background())
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, near.ID, current.ID)
	})

	t.Run("falls back to most recently dated release", func(t *testing.T) {
		older := models.ReleaseRef{ID: uuid.New(), Version: "1.0", Status: models.ReleaseStatusReleased, TargetDate: dateAt("2025-01-01")}
		newer := models.ReleaseRef{ID: uuid.New(), Version: "1.1", Status: models.ReleaseStatusReleased, TargetDate: dateAt("2025-03-01")}

		r := newTestRegistry(&mockLookupSource{releases: []models.ReleaseRef{older, newer}})

		current, err := r.CurrentRelease(context.Background())
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, newer.ID, current.ID)
	})

	t.Run("no releases yields nil", func(t *testing.T) {
		r := newTestRegistry(&mockLookupSource{})

		current, err := r.CurrentRelease(context.Background())
		require.NoError(t, err)
		assert.Nil(t, current)
	})
}

func TestRegistry_PreviousRelease(t *testing.T) {
	current := models.ReleaseRef{ID: uuid.New(), Version: "2.0", Status: models.ReleaseStatusInProgress, TargetDate: dateAt("2025-07-01")}
	prev := models.ReleaseRef{ID: uuid.New(), Version: "1.9", Status: models.ReleaseStatusReleased, TargetDate: dateAt("2025-04-01")}
	older := models.ReleaseRef{ID: uuid.New(), Version: "1.8", Status: models.ReleaseStatusReleased, TargetDate: dateAt("2025-02-01")}

	r := newTestRegistry(&mockLookupSource{releases: []models.ReleaseRef{current, prev, older}})

	got, err := r.PreviousRelease(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, prev.ID, got.ID)
}

func TestRegistry_ResolveModuleName(t *testing.T) {
	payments := models.ModuleRef{ID: uuid.New(), Name: "Payments", Aliases: []string{"pay", "billing"}}
	checkout := models.ModuleRef{ID: uuid.New(), Name: "Checkout Flow"}

	r := newTestRegistry(&mockLookupSource{modules: []models.ModuleRef{payments, checkout}})
	ctx := context.Background()

	t.Run("exact name match, case-insensitive", func(t *testing.T) {
		id, err := r.ResolveModuleName(ctx, "payments")
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, payments.ID, *id)
	})

	t.Run("alias match", func(t *testing.T) {
		id, err := r.ResolveModuleName(ctx, "billing")
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, payments.ID, *id)
	})

	t.Run("substring containment", func(t *testing.T) {
		id, err := r.ResolveModuleName(ctx, "checkout")
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, checkout.ID, *id)
	})

	t.Run("exact beats substring regardless of order", func(t *testing.T) {
		// "Pay" is a substring of "Payments" but also an alias; alias tier wins
		// before the containment tier is reached.
		id, err := r.ResolveModuleName(ctx, "Pay")
		require.NoError(t, err)
		require.NotNil(t, id)
		assert.Equal(t, payments.ID, *id)
	})

	t.Run("no match yields nil", func(t *testing.T) {
		id, err := r.ResolveModuleName(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, id)
	})
}

func TestRegistry_ResolveUserName(t *testing.T) {
	alice := models.UserRef{ID: uuid.New(), Name: "Alice Nguyen", Email: "alice@example.com"}
	bob := models.UserRef{ID: uuid.New(), Name: "Bob Park", Email: "bob@example.com"}

	r := newTestRegistry(&mockLookupSource{users: []models.UserRef{alice, bob}})
	ctx := context.Background()

	id, err := r.ResolveUserName(ctx, "alice nguyen")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, alice.ID, *id)

	id, err = r.ResolveUserName(ctx, "bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, bob.ID, *id)

	id, err = r.ResolveUserName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, alice.ID, *id)
}

func TestRegistry_ResolveReleaseVersion(t *testing.T) {
	r240 := models.ReleaseRef{ID: uuid.New(), Version: "2.4.0", Status: models.ReleaseStatusInProgress}

	r := newTestRegistry(&mockLookupSource{releases: []models.ReleaseRef{r240}})
	ctx := context.Background()

	id, err := r.ResolveReleaseVersion(ctx, "2.4.0")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, r240.ID, *id)

	id, err = r.ResolveReleaseVersion(ctx, "2.4")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, r240.ID, *id)

	id, err = r.ResolveReleaseVersion(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, id)
}

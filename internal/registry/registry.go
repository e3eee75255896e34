// Package registry supplies the vocabulary the classifier prompts and
// resolvers work from: navigation targets, module aliases, active users,
// releases, and the current-release notion. Every getter is cached with a
// fixed TTL, so the registry is eventually consistent with the underlying
// tables; Invalidate forces a reload.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/observability"
	"github.com/testvault/portal/pkg/cache"
)

// Cache keys, one per getter.
const (
	keyNavigation = "navigation"
	keyModules    = "modules"
	keyUsers      = "users"
	keyReleases   = "releases"
)

// NavigationSource lists the configured navigation targets.
type NavigationSource interface {
	ListActive(ctx context.Context) ([]models.NavigationTarget, error)
}

// LookupSource lists the entity rows free-text references resolve against.
type LookupSource interface {
	ListModules(ctx context.Context) ([]models.ModuleRef, error)
	ListActiveUsers(ctx context.Context) ([]models.UserRef, error)
	ListReleases(ctx context.Context) ([]models.ReleaseRef, error)
}

// Registry is the TTL-cached context registry.
type Registry struct {
	navigation *cache.LoaderCache[string, []models.NavigationTarget]
	modules    *cache.LoaderCache[string, []models.ModuleRef]
	users      *cache.LoaderCache[string, []models.UserRef]
	releases   *cache.LoaderCache[string, []models.ReleaseRef]

	navSource    NavigationSource
	lookupSource LookupSource
	metrics      observability.CacheMetrics
	logger       *slog.Logger
	now          func() time.Time
}

// Params configures the Registry. TTL defaults to 5 minutes; Logger and
// Metrics may be nil.
type Params struct {
	NavigationSource NavigationSource
	LookupSource     LookupSource
	TTL              time.Duration
	MaxEntries       int
	Metrics          observability.CacheMetrics
	Logger           *slog.Logger

	// Now overrides the clock for tests. Nil uses time.Now.
	Now func() time.Time
}

const (
	defaultTTL        = 5 * time.Minute
	defaultMaxEntries = 8
)

// New creates a Registry.
func New(p Params) *Registry {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	maxEntries := p.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	key := func(k string) string { return k }

	return &Registry{
		navigation:   cache.NewLoaderCache[string, []models.NavigationTarget](maxEntries, ttl, key),
		modules:      cache.NewLoaderCache[string, []models.ModuleRef](maxEntries, ttl, key),
		users:        cache.NewLoaderCache[string, []models.UserRef](maxEntries, ttl, key),
		releases:     cache.NewLoaderCache[string, []models.ReleaseRef](maxEntries, ttl, key),
		navSource:    p.NavigationSource,
		lookupSource: p.LookupSource,
		metrics:      p.Metrics,
		logger:       logger,
		now:          now,
	}
}

func (r *Registry) recordLookup(ctx context.Context, name string, hit bool) {
	if r.metrics == nil {
		return
	}

	if hit {
		r.metrics.RecordHit(ctx, name)
	} else {
		r.metrics.RecordMiss(ctx, name)
	}
}

// NavigationTargets returns the active navigation targets in display order.
func (r *Registry) NavigationTargets(ctx context.Context) ([]models.NavigationTarget, error) {
	targets, hit, err := r.navigation.GetWithStats(ctx, keyNavigation,
		func(ctx context.Context, _ string) ([]models.NavigationTarget, error) {
			return r.navSource.ListActive(ctx)
		})
	if err == nil {
		r.recordLookup(ctx, keyNavigation, hit)
	}

	return targets, err
}

// Modules returns all modules with aliases.
func (r *Registry) Modules(ctx context.Context) ([]models.ModuleRef, error) {
	modules, hit, err := r.modules.GetWithStats(ctx, keyModules,
		func(ctx context.Context, _ string) ([]models.ModuleRef, error) {
			return r.lookupSource.ListModules(ctx)
		})
	if err == nil {
		r.recordLookup(ctx, keyModules, hit)
	}

	return modules, err
}

// Users returns all active users.
func (r *Registry) Users(ctx context.Context) ([]models.UserRef, error) {
	users, hit, err := r.users.GetWithStats(ctx, keyUsers,
		func(ctx context.Context, _ string) ([]models.UserRef, error) {
			return r.lookupSource.ListActiveUsers(ctx)
		})
	if err == nil {
		r.recordLookup(ctx, keyUsers, hit)
	}

	return users, err
}

// Releases returns all releases, newest target date first.
func (r *Registry) Releases(ctx context.Context) ([]models.ReleaseRef, error) {
	releases, hit, err := r.releases.GetWithStats(ctx, keyReleases,
		func(ctx context.Context, _ string) ([]models.ReleaseRef, error) {
			return r.lookupSource.ListReleases(ctx)
		})
	if err == nil {
		r.recordLookup(ctx, keyReleases, hit)
	}

	return releases, err
}

// Invalidate drops every cached snapshot so the next getter reloads.
func (r *Registry) Invalidate() {
	r.navigation.InvalidateAll()
	r.modules.InvalidateAll()
	r.users.InvalidateAll()
	r.releases.InvalidateAll()
}

// CurrentRelease selects the release queries implicitly refer to:
// an in-progress release with the most recent target date; else the release
// with the nearest future target date; else the most recently dated release;
// else nil.
func (r *Registry) CurrentRelease(ctx context.Context) (*models.ReleaseRef, error) {
	releases, err := r.Releases(ctx)
	if err != nil {
		return nil, err
	}

	if len(releases) == 0 {
		return nil, nil //nolint:nilnil // "no current release" is a valid state, not an error
	}

	now := r.now()

	var inProgress *models.ReleaseRef

	for i := range releases {
		rel := &releases[i]
		if rel.Status != models.ReleaseStatusInProgress {
			continue
		}

		if inProgress == nil || laterDate(rel.TargetDate, inProgress.TargetDate) {
			inProgress = rel
		}
	}

	if inProgress != nil {
		return inProgress, nil
	}

	var nearestFuture *models.ReleaseRef

	for i := range releases {
		rel := &releases[i]
		if rel.TargetDate == nil || !rel.TargetDate.After(now) {
			continue
		}

		if nearestFuture == nil || rel.TargetDate.Before(*nearestFuture.TargetDate) {
			nearestFuture = rel
		}
	}

	if nearestFuture != nil {
		return nearestFuture, nil
	}

	var mostRecent *models.ReleaseRef

	for i := range releases {
		rel := &releases[i]
		if rel.TargetDate == nil {
			continue
		}

		if mostRecent == nil || rel.TargetDate.After(*mostRecent.TargetDate) {
			mostRecent = rel
		}
	}

	if mostRecent != nil {
		return mostRecent, nil
	}

	return nil, nil //nolint:nilnil // "no current release" is a valid state, not an error
}

// PreviousRelease returns the most recently dated release strictly before the
// current one, or nil. The classifier prompt mentions it so "last release"
// queries resolve.
func (r *Registry) PreviousRelease(ctx context.Context) (*models.ReleaseRef, error) {
	current, err := r.CurrentRelease(ctx)
	if err != nil || current == nil || current.TargetDate == nil {
		return nil, err
	}

	releases, err := r.Releases(ctx)
	if err != nil {
		return nil, err
	}

	var previous *models.ReleaseRef

	for i := range releases {
		rel := &releases[i]
		if rel.ID == current.ID || rel.TargetDate == nil || !rel.TargetDate.Before(*current.TargetDate) {
			continue
		}

		if previous == nil || rel.TargetDate.After(*previous.TargetDate) {
			previous = rel
		}
	}

	return previous, nil
}

// laterDate reports whether a is a later date than b, treating nil as earliest.
func laterDate(a, b *time.Time) bool {
	if a == nil {
		return false
	}

	if b == nil {
		return true
	}

	return a.After(*b)
}

// ResolveModuleName resolves free text to a module id: exact case-insensitive
// name match, then alias match, then substring containment in either
// direction. First match wins; ties break by encounter order.
func (r *Registry) ResolveModuleName(ctx context.Context, text string) (*uuid.UUID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil //nolint:nilnil // unresolved is a valid outcome
	}

	modules, err := r.Modules(ctx)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)

	for i := range modules {
		if strings.EqualFold(modules[i].Name, text) {
			return &modules[i].ID, nil
		}
	}

	for i := range modules {
		for _, alias := range modules[i].Aliases {
			if strings.EqualFold(alias, text) {
				return &modules[i].ID, nil
			}
		}
	}

	for i := range modules {
		name := strings.ToLower(modules[i].Name)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return &modules[i].ID, nil
		}
	}

	return nil, nil //nolint:nilnil // unresolved is a valid outcome
}

// ResolveUserName resolves free text to a user id: exact case-insensitive
// name, then email, then substring containment in either direction.
func (r *Registry) ResolveUserName(ctx context.Context, text string) (*uuid.UUID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil //nolint:nilnil // unresolved is a valid outcome
	}

	users, err := r.Users(ctx)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)

	for i := range users {
		if strings.EqualFold(users[i].Name, text) {
			return &users[i].ID, nil
		}
	}

	for i := range users {
		if strings.EqualFold(users[i].Email, text) {
			return &users[i].ID, nil
		}
	}

	for i := range users {
		name := strings.ToLower(users[i].Name)
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return &users[i].ID, nil
		}
	}

	return nil, nil //nolint:nilnil // unresolved is a valid outcome
}

// ResolveReleaseVersion resolves free text to a release id: exact
// case-insensitive version, then substring containment in either direction.
func (r *Registry) ResolveReleaseVersion(ctx context.Context, text string) (*uuid.UUID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil //nolint:nilnil // unresolved is a valid outcome
	}

	releases, err := r.Releases(ctx)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)

	for i := range releases {
		if strings.EqualFold(releases[i].Version, text) {
			return &releases[i].ID, nil
		}
	}

	for i := range releases {
		version := strings.ToLower(releases[i].Version)
		if strings.Contains(version, lower) || strings.Contains(lower, version) {
			return &releases[i].ID, nil
		}
	}

	return nil, nil //nolint:nilnil // unresolved is a valid outcome
}

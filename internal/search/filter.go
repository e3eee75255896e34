// Package search executes classified queries: structured filtering against
// entity tables, optional vector similarity search, and weighted merging of
// the two result sets.
package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/repository"
)

// DefaultMaxFilterResults caps how many IDs a structured filter pass may
// return when no override is configured.
const DefaultMaxFilterResults = 150

// EntityFilterer is the structured-query surface of the entities repository.
type EntityFilterer interface {
	FilterIDs(ctx context.Context, kind models.EntityKind, filters repository.EntityFilters, limit int) ([]uuid.UUID, error)
}

// ReferenceResolver resolves fuzzy human references (module names, user
// names, release versions) to row IDs. All methods return nil when nothing
// matches.
type ReferenceResolver interface {
	ResolveModuleName(ctx context.Context, text string) (*uuid.UUID, error)
	ResolveUserName(ctx context.Context, text string) (*uuid.UUID, error)
	ResolveReleaseVersion(ctx context.Context, text string) (*uuid.UUID, error)
	CurrentRelease(ctx context.Context) (*models.ReleaseRef, error)
}

// ResolvedFilters is the outcome of mapping a classifier filter map onto
// structured predicates.
type ResolvedFilters struct {
	Filters repository.EntityFilters

	// Ignored lists filter fields that were dropped: unrecognized names and
	// references that resolved to nothing.
	Ignored []string

	// NeedsCurrentRelease is set when the query asked for the current
	// release but no release is active. The caller decides how to guide the
	// user; the release predicate is left unset.
	NeedsCurrentRelease bool
}

// LimitSource supplies the runtime-tuned filter result cap. May be nil; the
// constructed maxResults applies.
type LimitSource interface {
	MaxFilterResults(ctx context.Context) int
}

// FilterEngine turns classifier filter maps into ID lists via the entities
// repository, resolving symbolic tokens ("me", "current") first.
type FilterEngine struct {
	entities   EntityFilterer
	resolver   ReferenceResolver
	maxResults int
	limits     LimitSource
}

// NewFilterEngine creates a FilterEngine. maxResults <= 0 selects
// DefaultMaxFilterResults.
func NewFilterEngine(entities EntityFilterer, resolver ReferenceResolver, maxResults int) *FilterEngine {
	if maxResults <= 0 {
		maxResults = DefaultMaxFilterResults
	}

	return &FilterEngine{entities: entities, resolver: resolver, maxResults: maxResults}
}

// WithLimitSource makes the engine read its result cap from src per query.
func (f *FilterEngine) WithLimitSource(src LimitSource) *FilterEngine {
	f.limits = src

	return f
}

func (f *FilterEngine) limit(ctx context.Context) int {
	if f.limits != nil {
		if n := f.limits.MaxFilterResults(ctx); n > 0 {
			return n
		}
	}

	return f.maxResults
}

// Resolve maps the classifier's filter fields onto structured predicates.
// Unrecognized fields are ignored rather than failing the query: the
// classifier's vocabulary may drift ahead of the filter engine's.
func (f *FilterEngine) Resolve(
	ctx context.Context, filters map[string]string, requesterID string,
) (ResolvedFilters, error) {
	var out ResolvedFilters

	for field, raw := range filters {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		switch strings.ToLower(field) {
		case "status":
			v := value
			out.Filters.Status = &v
		case "priority", "severity":
			v := value
			out.Filters.Priority = &v
		case "title", "keyword":
			v := value
			out.Filters.TitleContains = &v
		case "module", "module_name":
			id, err := f.resolver.ResolveModuleName(ctx, value)
			if err != nil {
				return out, err
			}

			if id == nil {
				out.Ignored = append(out.Ignored, field)

				continue
			}

			out.Filters.ModuleID = id
		case "assignee", "assigned_to", "owner":
			id, err := f.resolveAssignee(ctx, value, requesterID)
			if err != nil {
				return out, err
			}

			if id == nil {
				out.Ignored = append(out.Ignored, field)

				continue
			}

			out.Filters.AssigneeID = id
		case "release", "release_version":
			id, needsCurrent, err := f.resolveRelease(ctx, value)
			if err != nil {
				return out, err
			}

			if needsCurrent {
				out.NeedsCurrentRelease = true

				continue
			}

			if id == nil {
				out.Ignored = append(out.Ignored, field)

				continue
			}

			out.Filters.ReleaseID = id
		default:
			out.Ignored = append(out.Ignored, field)
		}
	}

	if len(out.Ignored) > 0 {
		slog.Debug("filter engine: ignored filter fields", "fields", out.Ignored)
	}

	return out, nil
}

// Filter resolves and executes the filter map, returning matching entity IDs
// capped at the engine's limit.
func (f *FilterEngine) Filter(
	ctx context.Context, kind models.EntityKind, filters map[string]string, requesterID string,
) ([]uuid.UUID, ResolvedFilters, error) {
	resolved, err := f.Resolve(ctx, filters, requesterID)
	if err != nil {
		return nil, resolved, err
	}

	ids, err := f.entities.FilterIDs(ctx, kind, resolved.Filters, f.limit(ctx))
	if err != nil {
		return nil, resolved, err
	}

	return ids, resolved, nil
}

// resolveAssignee handles the symbolic "me" token before falling back to
// fuzzy name resolution.
func (f *FilterEngine) resolveAssignee(ctx context.Context, value, requesterID string) (*uuid.UUID, error) {
	if strings.EqualFold(value, "me") {
		id, err := uuid.Parse(requesterID)
		if err != nil {
			slog.Warn("filter engine: requester ID is not a user ID, ignoring assignee=me",
				"requester_id", requesterID)

			return nil, nil
		}

		return &id, nil
	}

	return f.resolver.ResolveUserName(ctx, value)
}

// resolveRelease handles "current" (and "current release") specially: it maps
// to the active release, and its absence is reported to the caller instead of
// being silently dropped.
func (f *FilterEngine) resolveRelease(ctx context.Context, value string) (*uuid.UUID, bool, error) {
	lower := strings.ToLower(value)

	if lower == "current" || lower == "current release" || lower == "latest" {
		current, err := f.resolver.CurrentRelease(ctx)
		if err != nil {
			return nil, false, err
		}

		if current == nil {
			return nil, true, nil
		}

		return &current.ID, false, nil
	}

	id, err := f.resolver.ResolveReleaseVersion(ctx, value)

	return id, false, err
}

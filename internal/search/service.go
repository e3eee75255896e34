package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/classifier"
	"github.com/testvault/portal/internal/config"
	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/repository"
)

// MaxNavigationIDs caps how many entity IDs a response embeds in its query
// parameters. The full match count is still reported.
const MaxNavigationIDs = 50

// Outcome tags recorded per search for metrics.
const (
	OutcomeNavigated    = "navigated"
	OutcomeLowConfident = "low_confidence"
	OutcomeGuidance     = "guidance"
	OutcomeError        = "error"
)

// QueryClassifier is the classification surface the service depends on.
type QueryClassifier interface {
	Classify(ctx context.Context, query, requesterID string) (classifier.Classification, error)
}

// SemanticIndex runs embedding similarity queries for one entity kind.
type SemanticIndex interface {
	Search(ctx context.Context, kind models.EntityKind, query string, allowIDs []uuid.UUID) ([]models.EntityWithScore, error)
}

// NavigationSource supplies navigation targets and module refs for
// suggestions and boost hints.
type NavigationSource interface {
	NavigationTargets(ctx context.Context) ([]models.NavigationTarget, error)
	Modules(ctx context.Context) ([]models.ModuleRef, error)
}

// UsageRecorder persists one usage log row per search. Implementations must
// swallow their own errors; a failed log write never fails a search.
type UsageRecorder interface {
	Record(ctx context.Context, record models.UsageLogRecord)
}

// SettingsSource exposes the runtime-tunable knobs the service reads per
// request. May be nil; defaults apply.
type SettingsSource interface {
	ConfidenceFloor(ctx context.Context) float64
	SemanticWeight(ctx context.Context) float64
}

// Metrics is the slice of search telemetry the service emits. May be nil.
type Metrics interface {
	RecordSearch(ctx context.Context, intent, outcome string, duration time.Duration)
	RecordVectorFallback(ctx context.Context)
}

// Request is one natural-language search.
type Request struct {
	Query       string
	RequesterID uuid.UUID
}

// Response is the navigation decision for a request. Success false means the
// portal should not navigate; Message and Suggestions say why and what to
// offer instead.
type Response struct {
	Success     bool                          `json:"success"`
	Message     string                        `json:"message,omitempty"`
	Intent      string                        `json:"intent"`
	TargetPath  string                        `json:"target_path,omitempty"`
	QueryParams map[string]string             `json:"query_params,omitempty"`
	EntityIDs   []uuid.UUID                   `json:"entity_ids,omitempty"`
	ResultCount int                           `json:"result_count"`
	Confidence  float64                       `json:"confidence"`
	CacheHit    bool                          `json:"cache_hit"`
	Suggestions []models.NavigationSuggestion `json:"suggestions,omitempty"`
	Usage       models.TokenUsage             `json:"usage"`
	LatencyMS   int64                         `json:"latency_ms"`
}

// ServiceParams configures a Service.
type ServiceParams struct {
	Classifier QueryClassifier
	Filters    *FilterEngine
	Vectors    SemanticIndex
	Navigation NavigationSource
	Usage      UsageRecorder
	Settings   SettingsSource
	Metrics    Metrics

	Now func() time.Time // test clock
}

// Service executes the full search pipeline: classify, gate on confidence,
// structured filter, optional vector search, merge, respond. Every request
// leaves a usage log row regardless of outcome.
type Service struct {
	classifier QueryClassifier
	filters    *FilterEngine
	vectors    SemanticIndex
	navigation NavigationSource
	usage      UsageRecorder
	settings   SettingsSource
	metrics    Metrics
	now        func() time.Time
}

// NewService creates a Service from params.
func NewService(p ServiceParams) *Service {
	if p.Now == nil {
		p.Now = time.Now
	}

	return &Service{
		classifier: p.Classifier,
		filters:    p.Filters,
		vectors:    p.Vectors,
		navigation: p.Navigation,
		usage:      p.Usage,
		settings:   p.Settings,
		metrics:    p.Metrics,
		now:        p.Now,
	}
}

// Search resolves one request. Classification and filter failures surface as
// errors; vector search failures degrade to structured-only results.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := s.now()

	cls, err := s.classifier.Classify(ctx, req.Query, req.RequesterID.String())
	if err != nil {
		s.recordOutcome(ctx, "", OutcomeError, start)

		return nil, err
	}

	resp := &Response{
		Intent:     cls.Result.Intent,
		Confidence: cls.Result.Confidence,
		CacheHit:   cls.Source == classifier.SourceMemoryCache || cls.Source == classifier.SourceStoreCache,
		Usage:      cls.Usage,
	}

	outcome, err := s.resolve(ctx, req, cls, resp)
	if err != nil {
		s.recordOutcome(ctx, cls.Result.Intent, OutcomeError, start)
		s.logUsage(ctx, req, cls, resp, start, err)

		return nil, err
	}

	resp.LatencyMS = s.now().Sub(start).Milliseconds()

	s.recordOutcome(ctx, cls.Result.Intent, outcome, start)
	s.logUsage(ctx, req, cls, resp, start, nil)

	return resp, nil
}

// resolve fills resp from the classification and returns the outcome tag.
func (s *Service) resolve(
	ctx context.Context, req Request, cls classifier.Classification, resp *Response,
) (string, error) {
	result := cls.Result

	floor := float64(config.DefaultConfidenceFloor)
	weight := float64(config.DefaultSemanticWeight)

	if s.settings != nil {
		floor = s.settings.ConfidenceFloor(ctx)
		weight = s.settings.SemanticWeight(ctx)
	}

	// Rule-table classifications are deterministic stem matches; their fixed
	// confidence marks provenance, not doubt, so the floor does not apply.
	gated := result.Confidence < floor &&
		cls.Source != classifier.SourceFallback && cls.Source != classifier.SourceRateLimited

	if result.Intent == classifier.IntentUnknown || gated {
		resp.Success = false
		resp.Message = "I could not confidently map that query to a page."
		resp.Suggestions = s.suggestions(ctx)

		return OutcomeLowConfident, nil
	}

	resp.Success = true
	resp.TargetPath = result.TargetPath
	resp.QueryParams = map[string]string{}

	for field, value := range result.Filters {
		resp.QueryParams[field] = value
	}

	kind, searchable := entityKindForIntent(result.Intent)
	if !searchable {
		// Non-entity pages (dashboard, releases) navigate without a result set.
		return OutcomeNavigated, nil
	}

	structuredIDs, resolved, err := s.filters.Filter(ctx, kind, result.Filters, req.RequesterID.String())
	if err != nil {
		return OutcomeError, err
	}

	if resolved.NeedsCurrentRelease {
		resp.Success = false
		resp.TargetPath = ""
		resp.QueryParams = nil
		resp.Message = "No release is currently active, so I cannot scope this to the current release."
		resp.Suggestions = append(s.suggestions(ctx), models.NavigationSuggestion{
			Label: "View all " + strings.ReplaceAll(strings.TrimPrefix(result.TargetPath, "/"), "-", " "),
			Path:  result.TargetPath,
		})

		return OutcomeGuidance, nil
	}

	var vectorResults []models.EntityWithScore

	if result.RequiresSemantic && result.SemanticQuery != "" && s.vectors != nil {
		// Restrict the vector scan to structured matches only when structured
		// predicates actually narrowed the set.
		var allowIDs []uuid.UUID
		if hasPredicates(resolved) {
			allowIDs = structuredIDs
		}

		vectorResults, err = s.vectors.Search(ctx, kind, result.SemanticQuery, allowIDs)
		if err != nil {
			slog.Warn("search: vector search failed, using structured results only",
				"intent", result.Intent, "error", err)

			if s.metrics != nil {
				s.metrics.RecordVectorFallback(ctx)
			}

			vectorResults = nil
		}
	}

	boostIDs := s.moduleBoostIDs(ctx, kind, req.Query, resolved, len(vectorResults) > 0)

	merged := Merge(structuredIDs, vectorResults, weight, boostIDs)

	resp.ResultCount = len(merged)
	resp.EntityIDs = merged
	if len(resp.EntityIDs) > MaxNavigationIDs {
		resp.EntityIDs = resp.EntityIDs[:MaxNavigationIDs]
	}

	if len(resp.EntityIDs) > 0 {
		resp.QueryParams["ids"] = joinIDs(resp.EntityIDs)
	}

	return OutcomeNavigated, nil
}

// moduleBoostIDs derives a soft module signal: when no hard module filter is
// set and exactly one known module name appears in the raw query, entities of
// that module get a score boost in the merge. Only computed when a merge will
// actually happen.
func (s *Service) moduleBoostIDs(
	ctx context.Context, kind models.EntityKind, query string, resolved ResolvedFilters, merging bool,
) []uuid.UUID {
	if !merging || resolved.Filters.ModuleID != nil || s.navigation == nil {
		return nil
	}

	modules, err := s.navigation.Modules(ctx)
	if err != nil {
		slog.Debug("search: module hint lookup failed", "error", err)

		return nil
	}

	lower := " " + strings.ToLower(query) + " "

	var hint *uuid.UUID

	for i := range modules {
		names := append([]string{modules[i].Name}, modules[i].Aliases...)

		for _, name := range names {
			if name == "" || !strings.Contains(lower, " "+strings.ToLower(name)+" ") {
				continue
			}

			if hint != nil && *hint != modules[i].ID {
				// Ambiguous hint: more than one module mentioned, boost none.
				return nil
			}

			hint = &modules[i].ID
		}
	}

	if hint == nil {
		return nil
	}

	ids, err := s.filters.entities.FilterIDs(ctx, kind,
		repository.EntityFilters{ModuleID: hint}, s.filters.maxResults)
	if err != nil {
		slog.Debug("search: module hint filter failed", "error", err)

		return nil
	}

	return ids
}

// suggestions lists the active pages as fallback navigation options.
func (s *Service) suggestions(ctx context.Context) []models.NavigationSuggestion {
	if s.navigation == nil {
		return nil
	}

	targets, err := s.navigation.NavigationTargets(ctx)
	if err != nil {
		slog.Warn("search: suggestion lookup failed", "error", err)

		return nil
	}

	out := make([]models.NavigationSuggestion, 0, len(targets))

	for _, t := range targets {
		if !t.Active {
			continue
		}

		sug := models.NavigationSuggestion{Label: t.Name, Path: t.PathTemplate}
		if len(t.ExampleQueries) > 0 {
			sug.Query = t.ExampleQueries[0]
		}

		out = append(out, sug)
	}

	return out
}

func (s *Service) logUsage(
	ctx context.Context, req Request, cls classifier.Classification, resp *Response, start time.Time, searchErr error,
) {
	if s.usage == nil {
		return
	}

	record := models.UsageLogRecord{
		RequesterID:   req.RequesterID,
		Query:         req.Query,
		Intent:        cls.Result.Intent,
		TargetPath:    resp.TargetPath,
		Filters:       cls.Result.Filters,
		SemanticQuery: cls.Result.SemanticQuery,
		Usage:         cls.Usage,
		ResultCount:   resp.ResultCount,
		Confidence:    cls.Result.Confidence,
		CacheHit:      resp.CacheHit,
		LatencyMS:     s.now().Sub(start).Milliseconds(),
		CreatedAt:     s.now(),
	}

	if searchErr != nil {
		msg := searchErr.Error()
		record.Error = &msg
	}

	s.usage.Record(ctx, record)
}

func (s *Service) recordOutcome(ctx context.Context, intent, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}

	s.metrics.RecordSearch(ctx, intent, outcome, s.now().Sub(start))
}

// entityKindForIntent maps entity-listing intents onto their kind.
func entityKindForIntent(intent string) (models.EntityKind, bool) {
	switch intent {
	case classifier.IntentViewTestCases:
		return models.EntityKindTestCase, true
	case classifier.IntentViewIssues:
		return models.EntityKindIssue, true
	case classifier.IntentViewStories:
		return models.EntityKindStory, true
	default:
		return "", false
	}
}

// hasPredicates reports whether any structured predicate survived resolution.
func hasPredicates(r ResolvedFilters) bool {
	f := r.Filters

	return f.Status != nil || f.Priority != nil || f.ModuleID != nil ||
		f.AssigneeID != nil || f.ReleaseID != nil || f.TitleContains != nil
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}

	return strings.Join(parts, ",")
}

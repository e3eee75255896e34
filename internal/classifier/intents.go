// Package classifier turns free-text portal queries into structured
// classification results: an intent, a navigation target, extracted filters,
// and an optional semantic query. It fronts the external language model with
// a two-tier cache, a per-requester rate limit, a deterministic fallback rule
// table, and heuristic overrides.
package classifier

// Intent tags. Each maps 1:1 onto a navigation target key in the registry.
const (
	IntentViewTestCases = "view-test-cases"
	IntentViewIssues    = "view-issues"
	IntentViewStories   = "view-stories"
	IntentViewReleases  = "view-releases"
	IntentViewDashboard = "view-dashboard"
	IntentUnknown       = "unknown"
)

// Default paths used when the registry has no row for an intent (e.g. a
// fallback classification while the navigation table is unreachable).
var defaultPaths = map[string]string{
	IntentViewTestCases: "/test-cases",
	IntentViewIssues:    "/issues",
	IntentViewStories:   "/stories",
	IntentViewReleases:  "/releases",
	IntentViewDashboard: "/dashboard",
}

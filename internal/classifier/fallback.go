package classifier

import (
	"strings"

	"github.com/testvault/portal/internal/models"
)

// FallbackConfidence is the fixed confidence attached to rule-table matches.
// Deliberately lower than a typical model response so downstream consumers
// can tell the two apart.
const FallbackConfidence = 0.45

// fallbackRule maps query stems to an intent. Order matters: first match wins.
type fallbackRule struct {
	stems  []string
	intent string
}

var fallbackRules = []fallbackRule{
	{stems: []string{"test", "tests", "testcase", "testcases"}, intent: IntentViewTestCases},
	{stems: []string{"issue", "issues", "bug", "bugs", "defect", "defects"}, intent: IntentViewIssues},
	{stems: []string{"story", "stories"}, intent: IntentViewStories},
	{stems: []string{"release", "releases"}, intent: IntentViewReleases},
	{stems: []string{"dashboard", "overview"}, intent: IntentViewDashboard},
}

// classifyByRules is the deterministic fallback used whenever the language
// model is unavailable, blocked, or produced unparseable output. Issue
// queries are always mapped onto the current release; the filter engine
// resolves the symbolic "current" token.
func classifyByRules(query string) models.ClassificationResult {
	words := splitWords(strings.ToLower(query))

	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}

	result := models.ClassificationResult{
		Intent:     IntentUnknown,
		Filters:    map[string]string{},
		Confidence: FallbackConfidence,
	}

	for _, rule := range fallbackRules {
		for _, stem := range rule.stems {
			if _, ok := wordSet[stem]; !ok {
				continue
			}

			result.Intent = rule.intent
			result.TargetPath = defaultPaths[rule.intent]

			if rule.intent == IntentViewIssues {
				result.Filters["release"] = "current"
			}

			return result
		}
	}

	result.Confidence = 0

	return result
}

// splitWords breaks a query into lowercase word tokens, dropping punctuation.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		}

		return true
	})
}

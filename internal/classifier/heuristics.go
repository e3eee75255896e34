package classifier

import (
	"strings"

	"github.com/testvault/portal/internal/models"
)

// triggerPhrases force semantic search regardless of the model's own flag:
// they signal the user is describing content, not naming fields.
var triggerPhrases = []string{
	"related to",
	"about",
	"involving",
	"for",
	"matching",
	"containing",
	"regarding",
	"concerning",
}

// domainKeywords are product-area terms that rarely appear as structured
// field values; their presence in an entity-targeting query means the user is
// hunting for content.
var domainKeywords = map[string]struct{}{
	"ach": {}, "payment": {}, "payments": {}, "refund": {}, "checkout": {},
	"login": {}, "signup": {}, "auth": {}, "authentication": {}, "oauth": {},
	"api": {}, "webhook": {}, "export": {}, "import": {}, "sync": {},
	"timeout": {}, "crash": {}, "performance": {}, "migration": {},
	"notification": {}, "email": {}, "invoice": {}, "onboarding": {},
}

// stopWords are dropped when synthesizing a semantic query from the raw
// query's content words.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "to": {},
	"for": {}, "with": {}, "and": {}, "or": {}, "is": {}, "are": {},
	"me": {}, "my": {}, "all": {}, "any": {}, "show": {}, "find": {},
	"list": {}, "display": {}, "get": {}, "give": {}, "please": {},
	"related": {}, "about": {}, "involving": {}, "matching": {},
	"containing": {}, "regarding": {}, "concerning": {}, "that": {},
	"which": {}, "where": {}, "assigned": {}, "test": {}, "tests": {},
	"case": {}, "cases": {}, "issue": {}, "issues": {}, "bug": {},
	"bugs": {}, "story": {}, "stories": {}, "release": {}, "releases": {},
	"dashboard": {}, "overview": {},
}

// intentEntityKind maps entity-targeting intents to their kind. Intents
// absent from the map (releases, dashboard) have no searchable entities.
var intentEntityKind = map[string]models.EntityKind{
	IntentViewTestCases: models.EntityKindTestCase,
	IntentViewIssues:    models.EntityKindIssue,
	IntentViewStories:   models.EntityKindStory,
}

// forceSemantic reports whether semantic search must be switched on for the
// query independent of the model's flag: an explicit relational trigger
// phrase anywhere, or (for intents targeting searchable entities) a
// domain-keyword hit.
func forceSemantic(query, intent string) bool {
	lower := strings.ToLower(query)

	for _, phrase := range triggerPhrases {
		// Whole-phrase match with word boundaries so e.g. "before" does not
		// trip the "for" trigger.
		if containsPhrase(lower, phrase) {
			return true
		}
	}

	if _, entityIntent := intentEntityKind[intent]; !entityIntent {
		return false
	}

	for _, w := range splitWords(lower) {
		if _, ok := domainKeywords[w]; ok {
			return true
		}
	}

	return false
}

// containsPhrase reports whether phrase occurs in s on word boundaries.
func containsPhrase(s, phrase string) bool {
	idx := 0

	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}

		start := idx + i
		end := start + len(phrase)

		startOK := start == 0 || !isWordChar(s[start-1])
		endOK := end == len(s) || !isWordChar(s[end])

		if startOK && endOK {
			return true
		}

		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// synthesizeSemanticQuery builds a semantic query from the raw query's
// content words plus an entity-appropriate suffix. Short strings embed
// poorly, so the suffix anchors the text near the stored entity vectors.
func synthesizeSemanticQuery(query, intent string) string {
	var content []string

	for _, w := range splitWords(strings.ToLower(query)) {
		if _, ok := stopWords[w]; ok {
			continue
		}

		content = append(content, w)
	}

	kind, ok := intentEntityKind[intent]
	if !ok {
		return strings.Join(content, " ")
	}

	suffix := kind.SemanticSuffix()
	if len(content) == 0 {
		return suffix
	}

	return strings.Join(content, " ") + " " + suffix
}

// applyOverrides enforces the heuristic overrides on a parsed or fallback
// classification: forced semantic search and semantic query synthesis.
func applyOverrides(result *models.ClassificationResult, query string) {
	if forceSemantic(query, result.Intent) {
		result.RequiresSemantic = true
	}

	if _, entityIntent := intentEntityKind[result.Intent]; !entityIntent {
		result.RequiresSemantic = false
		result.SemanticQuery = ""

		return
	}

	if result.RequiresSemantic && result.SemanticQuery == "" {
		result.SemanticQuery = synthesizeSemanticQuery(query, result.Intent)
	}
}

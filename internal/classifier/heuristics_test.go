package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/testvault/portal/internal/models"
)

func TestForceSemantic(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		intent string
		want   bool
	}{
		{"trigger phrase", "issues related to checkout", IntentViewIssues, true},
		{"trigger phrase mid-sentence", "tests about password reset", IntentViewTestCases, true},
		{"for as a whole word", "tests for onboarding", IntentViewTestCases, true},
		{"for inside another word is ignored", "stories before the freeze", IntentViewStories, false},
		{"domain keyword on entity intent", "ACH issues", IntentViewIssues, true},
		{"domain keyword on non-entity intent", "payment dashboard", IntentViewDashboard, false},
		{"plain structured query", "open issues assigned to me", IntentViewIssues, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, forceSemantic(tt.query, tt.intent))
		})
	}
}

func TestSynthesizeSemanticQuery(t *testing.T) {
	t.Run("drops stop words and appends the kind suffix", func(t *testing.T) {
		got := synthesizeSemanticQuery("show me issues about duplicate ACH transfers", IntentViewIssues)

		assert.Equal(t, "duplicate ach transfers "+models.EntityKindIssue.SemanticSuffix(), got)
	})

	t.Run("all stop words leaves just the suffix", func(t *testing.T) {
		got := synthesizeSemanticQuery("show me all the tests", IntentViewTestCases)

		assert.Equal(t, models.EntityKindTestCase.SemanticSuffix(), got)
	})

	t.Run("non-entity intent gets no suffix", func(t *testing.T) {
		got := synthesizeSemanticQuery("release burndown", IntentViewReleases)

		assert.Equal(t, "burndown", got)
	})
}

func TestClassifyByRules(t *testing.T) {
	tests := []struct {
		query      string
		wantIntent string
	}{
		{"failed tests", IntentViewTestCases},
		{"any open bugs?", IntentViewIssues},
		{"user stories", IntentViewStories},
		{"next release", IntentViewReleases},
		{"overview please", IntentViewDashboard},
		{"hello there", IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := classifyByRules(tt.query)

			assert.Equal(t, tt.wantIntent, got.Intent)

			if tt.wantIntent == IntentUnknown {
				assert.Zero(t, got.Confidence)
				assert.Empty(t, got.TargetPath)
			} else {
				assert.InDelta(t, FallbackConfidence, got.Confidence, 1e-9)
				assert.Equal(t, defaultPaths[tt.wantIntent], got.TargetPath)
			}

			if tt.wantIntent == IntentViewIssues {
				assert.Equal(t, "current", got.Filters["release"])
			}
		})
	}
}

package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/testvault/portal/internal/models"
)

func strPtr(s string) *string { return &s }

func TestEmbeddingInput(t *testing.T) {
	t.Run("test case includes steps and categorical context", func(t *testing.T) {
		got := EmbeddingInput(models.SearchableEntity{
			Kind:       models.EntityKindTestCase,
			Title:      "Verify ACH transfer rejection",
			Status:     "active",
			Priority:   strPtr("high"),
			Steps:      strPtr("1. Submit transfer\n2. Expect rejection"),
			ModuleName: strPtr("Payments"),
		})

		assert.Equal(t,
			"Verify ACH transfer rejection\n"+
				"Steps: 1. Submit transfer\n2. Expect rejection\n"+
				"Module: Payments\n"+
				"Status: active\n"+
				"Priority: high",
			got)
	})

	t.Run("issue uses description instead of steps", func(t *testing.T) {
		got := EmbeddingInput(models.SearchableEntity{
			Kind:        models.EntityKindIssue,
			Title:       "Duplicate payment on retry",
			Status:      "open",
			Description: strPtr("Checkout retries double-charge the card."),
		})

		assert.Equal(t,
			"Duplicate payment on retry\n"+
				"Description: Checkout retries double-charge the card.\n"+
				"Status: open",
			got)
	})

	t.Run("story omits priority", func(t *testing.T) {
		got := EmbeddingInput(models.SearchableEntity{
			Kind:     models.EntityKindStory,
			Title:    "As a user I can export reports",
			Status:   "ready",
			Priority: strPtr("low"),
		})

		assert.NotContains(t, got, "Priority")
	})

	t.Run("blank fields are skipped", func(t *testing.T) {
		got := EmbeddingInput(models.SearchableEntity{
			Kind:   models.EntityKindIssue,
			Title:  "Login timeout",
			Status: "  ",
			Steps:  strPtr("   "),
		})

		assert.Equal(t, "Login timeout", got)
	})

	t.Run("empty entity produces empty input", func(t *testing.T) {
		assert.Empty(t, EmbeddingInput(models.SearchableEntity{Kind: models.EntityKindIssue}))
	})
}

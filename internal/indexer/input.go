package indexer

import (
	"strings"

	"github.com/testvault/portal/internal/models"
)

// EmbeddingInput renders the text that gets embedded for an entity. Each kind
// has its own template: the title plus the free text the similarity model
// should weight (steps for test cases, description otherwise) plus the
// categorical context (module, status, priority). Preconditions and other
// setup-oriented text are deliberately left out: they describe environment,
// not behavior, and drag unrelated entities together in vector space.
func EmbeddingInput(e models.SearchableEntity) string {
	var b strings.Builder

	writeSegment(&b, "", e.Title)

	switch e.Kind {
	case models.EntityKindTestCase:
		if e.Steps != nil {
			writeSegment(&b, "Steps", *e.Steps)
		}
	case models.EntityKindIssue, models.EntityKindStory:
		if e.Description != nil {
			writeSegment(&b, "Description", *e.Description)
		}
	}

	if e.ModuleName != nil {
		writeSegment(&b, "Module", *e.ModuleName)
	}

	writeSegment(&b, "Status", e.Status)

	if e.Priority != nil && e.Kind != models.EntityKindStory {
		writeSegment(&b, "Priority", *e.Priority)
	}

	return strings.TrimSpace(b.String())
}

func writeSegment(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	if b.Len() > 0 {
		b.WriteString("\n")
	}

	if label != "" {
		b.WriteString(label)
		b.WriteString(": ")
	}

	b.WriteString(value)
}

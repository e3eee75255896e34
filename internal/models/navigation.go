package models

import (
	"time"

	"github.com/google/uuid"
)

// FilterFieldSpec describes one filter field a navigation target recognizes.
// AllowedValues is empty for free-form fields (e.g. assignee names).
type FilterFieldSpec struct {
	Name          string   `json:"name"`
	Label         string   `json:"label"`
	Type          string   `json:"type"` // "enum", "user", "module", "release", "text"
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// NavigationTarget is a registry row describing a destination page the
// classifier can route queries to. Mutated only through administrative
// configuration; the retrieval engine treats it as read-only.
type NavigationTarget struct {
	ID               uuid.UUID         `json:"id"`
	Key              string            `json:"key"` // e.g. "view-test-cases"
	Name             string            `json:"name"`
	PathTemplate     string            `json:"path_template"`
	EntityKind       *EntityKind       `json:"entity_kind,omitempty"` // nil for non-entity pages (e.g. dashboard)
	FilterFields     []FilterFieldSpec `json:"filter_fields,omitempty"`
	SearchableFields []string          `json:"searchable_fields,omitempty"`
	Capabilities     []string          `json:"capabilities,omitempty"`
	ExampleQueries   []string          `json:"example_queries,omitempty"`
	Active           bool              `json:"active"`
	DisplayOrder     int               `json:"display_order"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// SupportsSemanticSearch reports whether the target points at a searchable
// entity kind with at least one semantically searchable field.
func (t *NavigationTarget) SupportsSemanticSearch() bool {
	return t.EntityKind != nil && len(t.SearchableFields) > 0
}

// NavigationSuggestion is one alternative destination offered to the caller
// when classification confidence is below the configured floor.
type NavigationSuggestion struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Query string `json:"query,omitempty"` // pre-filled query text, if any
}

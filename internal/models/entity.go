package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies which searchable table a record belongs to.
type EntityKind string

const (
	EntityKindTestCase EntityKind = "test_case"
	EntityKindIssue    EntityKind = "issue"
	EntityKindStory    EntityKind = "story"
)

// Kinds returns all searchable entity kinds in a stable order.
func Kinds() []EntityKind {
	return []EntityKind{EntityKindTestCase, EntityKindIssue, EntityKindStory}
}

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityKindTestCase, EntityKindIssue, EntityKindStory:
		return true
	}

	return false
}

// Table returns the backing table name for the kind. Panics on an unknown
// kind; callers validate with Valid() at the boundary.
func (k EntityKind) Table() string {
	switch k {
	case EntityKindTestCase:
		return "test_cases"
	case EntityKindIssue:
		return "issues"
	case EntityKindStory:
		return "stories"
	}

	panic("models: unknown entity kind " + string(k))
}

// SemanticSuffix is appended to synthesized semantic queries so short query
// strings embed closer to stored entity text.
func (k EntityKind) SemanticSuffix() string {
	switch k {
	case EntityKindTestCase:
		return "test cases"
	case EntityKindIssue:
		return "issues"
	case EntityKindStory:
		return "user stories"
	}

	return ""
}

// SearchableEntity is the projection of a domain record that the retrieval
// engine reads: classification/filter fields plus the stored embedding.
// Invariant: EmbeddingVector and EmbeddingModel are either both set or both
// unset; the indexer writes them atomically.
type SearchableEntity struct {
	ID          uuid.UUID  `json:"id"`
	Kind        EntityKind `json:"kind"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Priority    *string    `json:"priority,omitempty"`
	ModuleID    *uuid.UUID `json:"module_id,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	ReleaseID   *uuid.UUID `json:"release_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	Steps       *string    `json:"steps,omitempty"`
	ModuleName  *string    `json:"module_name,omitempty"` // joined for embedding input text

	EmbeddingVector []float32 `json:"-"`
	EmbeddingModel  *string   `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityWithScore is an entity ID and its cosine similarity score (0..1).
type EntityWithScore struct {
	ID    uuid.UUID `json:"id"`
	Score float64   `json:"score"`
}

// ModuleRef is a lookup row used for fuzzy module resolution.
type ModuleRef struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Aliases []string  `json:"aliases,omitempty"`
}

// UserRef is a lookup row used for fuzzy user resolution.
type UserRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Release lifecycle states as stored in the releases table.
const (
	ReleaseStatusPlanned    = "planned"
	ReleaseStatusInProgress = "in_progress"
	ReleaseStatusReleased   = "released"
)

// ReleaseRef is a lookup row used for release resolution and the
// current-release selection policy.
type ReleaseRef struct {
	ID         uuid.UUID  `json:"id"`
	Version    string     `json:"version"`
	Status     string     `json:"status"`
	TargetDate *time.Time `json:"target_date,omitempty"`
}

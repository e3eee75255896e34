// Package jobs defines the background job contracts: argument payloads, the
// queue-agnostic inserter interface, and its River implementation.
package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/testvault/portal/internal/models"
)

const (
	entityEmbeddingKind = "entity_embedding"

	// EmbeddingsQueueName is the River queue for per-entity embedding jobs.
	EmbeddingsQueueName = "embeddings"
)

// EntityEmbeddingArgs is the payload for re-embedding one entity after its
// text changed. Uniqueness is by (entity, kind) so duplicate change events
// for the same row collapse into one pending job.
type EntityEmbeddingArgs struct {
	EntityID   uuid.UUID         `json:"entity_id" river:"unique"`
	EntityKind models.EntityKind `json:"entity_kind" river:"unique"`
}

// Kind returns the River job kind.
func (EntityEmbeddingArgs) Kind() string { return entityEmbeddingKind }

var _ river.JobArgs = EntityEmbeddingArgs{}

// Package workers provides River job workers for background embedding
// maintenance triggered by entity changes.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/testvault/portal/internal/apperrors"
	"github.com/testvault/portal/internal/embeddings"
	"github.com/testvault/portal/internal/indexer"
	"github.com/testvault/portal/internal/jobs"
	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/repository"
)

const entityEmbeddingTimeout = 30 * time.Second

// entityStore is the repository surface the worker needs.
type entityStore interface {
	GetEntity(ctx context.Context, kind models.EntityKind, id uuid.UUID) (*models.SearchableEntity, error)
	WriteEmbeddings(ctx context.Context, kind models.EntityKind, writes []repository.EmbeddingWrite) error
	ClearEmbedding(ctx context.Context, kind models.EntityKind, id uuid.UUID) error
}

// EntityEmbeddingWorker re-embeds one entity after its text changed. When
// the entity no longer has embeddable text, the vector and model tag are
// cleared together.
type EntityEmbeddingWorker struct {
	river.WorkerDefaults[jobs.EntityEmbeddingArgs]

	entities entityStore
	embedder embeddings.Client
}

// NewEntityEmbeddingWorker creates the worker.
func NewEntityEmbeddingWorker(entities entityStore, embedder embeddings.Client) *EntityEmbeddingWorker {
	return &EntityEmbeddingWorker{entities: entities, embedder: embedder}
}

// Timeout limits how long a single re-embed job may run.
func (w *EntityEmbeddingWorker) Timeout(*river.Job[jobs.EntityEmbeddingArgs]) time.Duration {
	return entityEmbeddingTimeout
}

// Work loads the entity, rebuilds its embedding input, and writes or clears
// the vector. Gone or malformed entities are logged and dropped rather than
// retried; transient provider and store failures return the error so River
// retries.
func (w *EntityEmbeddingWorker) Work(ctx context.Context, job *river.Job[jobs.EntityEmbeddingArgs]) error {
	args := job.Args

	if !args.EntityKind.Valid() {
		slog.Error("re-embed: unknown entity kind, dropping job",
			"entity_id", args.EntityID, "entity_kind", args.EntityKind)

		return nil
	}

	entity, err := w.entities.GetEntity(ctx, args.EntityKind, args.EntityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deleted between enqueue and work. Nothing to embed.
			slog.Debug("re-embed: entity gone", "entity_id", args.EntityID, "entity_kind", args.EntityKind)

			return nil
		}

		return err
	}

	text := indexer.EmbeddingInput(*entity)
	if text == "" {
		if err := w.entities.ClearEmbedding(ctx, args.EntityKind, args.EntityID); err != nil {
			return err
		}

		slog.Info("re-embed: cleared embedding for empty text",
			"entity_id", args.EntityID, "entity_kind", args.EntityKind)

		return nil
	}

	vector, err := w.embedder.GetEmbedding(ctx, text)
	if err != nil {
		return err
	}

	return w.entities.WriteEmbeddings(ctx, args.EntityKind, []repository.EmbeddingWrite{{
		EntityID: args.EntityID,
		Vector:   vector,
		Model:    w.embedder.Model(),
	}})
}

package jobs

import (
	"context"
)

// JobInserter enqueues background jobs without exposing River to callers.
type JobInserter interface {
	// InsertEntityEmbeddingJob enqueues a re-embed for one entity.
	InsertEntityEmbeddingJob(ctx context.Context, args EntityEmbeddingArgs) error
}

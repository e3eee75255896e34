package jobs

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverJobInserter creates a River-backed job inserter.
func NewRiverJobInserter(client *river.Client[pgx.Tx]) *RiverJobInserter {
	return &RiverJobInserter{client: client}
}

// InsertEntityEmbeddingJob enqueues a re-embed with uniqueness by args: one
// pending job per (entity, kind) no matter how many change events fire.
func (r *RiverJobInserter) InsertEntityEmbeddingJob(ctx context.Context, args EntityEmbeddingArgs) error {
	_, err := r.client.Insert(ctx, args, &river.InsertOpts{
		Queue: EmbeddingsQueueName,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			// JobStatePending is required by River when using ByState.
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	})

	return err
}

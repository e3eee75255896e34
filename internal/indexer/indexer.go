// Package indexer maintains the entity embedding columns: a single-run
// background job that pages through entities missing a current vector,
// batch-embeds their text, and writes vectors back in small atomic commits.
package indexer

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/apperrors"
	"github.com/testvault/portal/internal/embeddings"
	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/repository"
)

// ErrAlreadyRunning is returned when a run is triggered while another is
// active. The active run's progress is left untouched.
var ErrAlreadyRunning = apperrors.NewConflictError("an indexing run is already in progress")

// TriggerOutcome is the immediate answer to a trigger request.
type TriggerOutcome string

const (
	TriggerAccepted       TriggerOutcome = "accepted"
	TriggerAlreadyRunning TriggerOutcome = "already_running"
	TriggerNothingToDo    TriggerOutcome = "nothing_to_do"
)

// EntitySource is the repository surface the indexer pages through.
type EntitySource interface {
	CountEmbeddingCandidates(ctx context.Context, kind models.EntityKind, model string, full bool) (int, error)
	ListEmbeddingCandidates(ctx context.Context, kind models.EntityKind, model string, full bool, afterID uuid.UUID, limit int) ([]models.SearchableEntity, error)
	WriteEmbeddings(ctx context.Context, kind models.EntityKind, writes []repository.EmbeddingWrite) error
	ClearEmbedding(ctx context.Context, kind models.EntityKind, id uuid.UUID) error
}

// Params configures an Indexer.
type Params struct {
	Entities EntitySource
	Embedder embeddings.Client

	// PageSize is how many entities one page loads. Default 200.
	PageSize int

	// SubBatchSize is how many entities share one embedding call and one
	// write transaction. Default 16; must not exceed PageSize.
	SubBatchSize int

	Now func() time.Time // test clock
}

// Indexer owns the process-wide indexing run. Exactly one run may be active;
// progress is readable at any time through Status.
type Indexer struct {
	entities EntitySource
	embedder embeddings.Client

	pageSize     int
	subBatchSize int
	now          func() time.Time

	mu       sync.Mutex
	progress models.IndexingProgress
	running  bool
	done     chan struct{} // closed when the active run finishes; nil when idle
}

// New creates an Indexer from params.
func New(p Params) *Indexer {
	if p.PageSize <= 0 {
		p.PageSize = 200
	}

	if p.SubBatchSize <= 0 || p.SubBatchSize > p.PageSize {
		p.SubBatchSize = min(16, p.PageSize)
	}

	if p.Now == nil {
		p.Now = time.Now
	}

	return &Indexer{
		entities:     p.Entities,
		embedder:     p.Embedder,
		pageSize:     p.PageSize,
		subBatchSize: p.SubBatchSize,
		now:          p.Now,
		progress:     models.IndexingProgress{Status: models.IndexingIdle},
	}
}

// Status returns a snapshot of the current (or last) run's progress.
func (ix *Indexer) Status() models.IndexingProgress {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.progress
}

// Wait blocks until the active run finishes. Returns immediately when no run
// is active.
func (ix *Indexer) Wait() {
	ix.mu.Lock()
	done := ix.done
	ix.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Trigger starts a run covering every entity kind. full regenerates all
// embeddings; otherwise only missing or stale ones (model tag differs from
// the configured embedder) are processed. The run itself executes in a
// background goroutine; Trigger returns as soon as the candidate total is
// known. A second trigger while a run is active returns ErrAlreadyRunning
// and leaves the active run's progress untouched.
func (ix *Indexer) Trigger(ctx context.Context, full bool) (TriggerOutcome, int, error) {
	if outcome, total, blocked := ix.activeRun(); blocked {
		return outcome, total, ErrAlreadyRunning
	}

	model := ix.embedder.Model()
	total := 0

	for _, kind := range models.Kinds() {
		n, err := ix.entities.CountEmbeddingCandidates(ctx, kind, model, full)
		if err != nil {
			return "", 0, err
		}

		total += n
	}

	if total == 0 {
		return TriggerNothingToDo, 0, nil
	}

	ix.mu.Lock()

	if ix.running {
		total := ix.progress.Total
		ix.mu.Unlock()

		return TriggerAlreadyRunning, total, ErrAlreadyRunning
	}

	started := ix.now()
	ix.running = true
	ix.done = make(chan struct{})
	ix.progress = models.IndexingProgress{
		Status:    models.IndexingRunning,
		Total:     total,
		Model:     model,
		StartedAt: &started,
	}
	ix.mu.Unlock()

	// The run outlives the triggering request.
	go ix.run(context.WithoutCancel(ctx), full)

	return TriggerAccepted, total, nil
}

func (ix *Indexer) activeRun() (TriggerOutcome, int, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.running {
		return "", 0, false
	}

	return TriggerAlreadyRunning, ix.progress.Total, true
}

// run drives the paged scan. Entity-scoped failures are counted and skipped;
// only list/count failures abort the run.
func (ix *Indexer) run(ctx context.Context, full bool) {
	slog.Info("indexing run started",
		"total", ix.Status().Total, "full", full, "model", ix.embedder.Model())

	for _, kind := range models.Kinds() {
		if err := ix.runKind(ctx, kind, full); err != nil {
			ix.finish(models.IndexingFailed, err.Error())
			slog.Error("indexing run failed", "kind", kind, "error", err)

			return
		}
	}

	ix.finish(models.IndexingCompleted, "")

	status := ix.Status()
	slog.Info("indexing run completed", "processed", status.Processed, "errors", status.Errors)
}

func (ix *Indexer) runKind(ctx context.Context, kind models.EntityKind, full bool) error {
	model := ix.embedder.Model()
	afterID := uuid.Nil

	for {
		page, err := ix.entities.ListEmbeddingCandidates(ctx, kind, model, full, afterID, ix.pageSize)
		if err != nil {
			return err
		}

		if len(page) == 0 {
			return nil
		}

		afterID = page[len(page)-1].ID
		short := len(page) < ix.pageSize

		for start := 0; start < len(page); start += ix.subBatchSize {
			end := min(start+ix.subBatchSize, len(page))
			ix.processSubBatch(ctx, kind, page[start:end])
		}

		// Drop the page before the GC hint so a long run's peak memory stays
		// one page regardless of table size.
		page = nil //nolint:ineffassign,wastedassign // release before GC
		runtime.GC()

		if short {
			return nil
		}
	}
}

// processSubBatch embeds one group and writes it atomically: every entity in
// the batch ends with both vector and model tag set, or the batch is counted
// as errored and left for a future run.
func (ix *Indexer) processSubBatch(ctx context.Context, kind models.EntityKind, batch []models.SearchableEntity) {
	inputs := make([]string, 0, len(batch))
	targets := make([]uuid.UUID, 0, len(batch))

	for _, e := range batch {
		text := EmbeddingInput(e)
		if text == "" {
			// No embeddable text: clear both columns together.
			if err := ix.entities.ClearEmbedding(ctx, kind, e.ID); err != nil {
				slog.Warn("indexing: clear embedding failed", "kind", kind, "id", e.ID, "error", err)
				ix.addErrors(1)
			}

			ix.addProcessed(1)

			continue
		}

		inputs = append(inputs, text)
		targets = append(targets, e.ID)
	}

	if len(inputs) == 0 {
		return
	}

	vectors, err := ix.embedder.GetEmbeddings(ctx, inputs)
	if err != nil || len(vectors) != len(inputs) {
		slog.Warn("indexing: sub-batch embedding failed",
			"kind", kind, "size", len(inputs), "error", err)
		ix.addErrors(len(inputs))
		ix.addProcessed(len(inputs))

		return
	}

	model := ix.embedder.Model()
	writes := make([]repository.EmbeddingWrite, len(targets))

	for i, id := range targets {
		writes[i] = repository.EmbeddingWrite{EntityID: id, Vector: vectors[i], Model: model}
	}

	if err := ix.entities.WriteEmbeddings(ctx, kind, writes); err != nil {
		slog.Warn("indexing: sub-batch write failed", "kind", kind, "size", len(writes), "error", err)
		ix.addErrors(len(writes))
	}

	ix.addProcessed(len(writes))
}

func (ix *Indexer) addProcessed(n int) {
	ix.mu.Lock()
	ix.progress.Processed += n
	ix.mu.Unlock()
}

func (ix *Indexer) addErrors(n int) {
	ix.mu.Lock()
	ix.progress.Errors += n
	ix.mu.Unlock()
}

func (ix *Indexer) finish(status models.IndexingStatus, message string) {
	ix.mu.Lock()
	done := ix.now()
	ix.progress.Status = status
	ix.progress.Message = message
	ix.progress.CompletedAt = &done
	ix.running = false

	if ix.done != nil {
		close(ix.done)
		ix.done = nil
	}

	ix.mu.Unlock()
}

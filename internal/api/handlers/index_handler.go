package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/api/response"
	"github.com/testvault/portal/internal/indexer"
	"github.com/testvault/portal/internal/jobs"
	"github.com/testvault/portal/internal/models"
)

// IndexService triggers and reports on embedding maintenance runs.
type IndexService interface {
	Trigger(ctx context.Context, full bool) (indexer.TriggerOutcome, int, error)
	Status() models.IndexingProgress
}

// IndexHandler handles index run triggering, status, and single-entity
// re-embed requests.
type IndexHandler struct {
	service  IndexService
	inserter jobs.JobInserter
}

// NewIndexHandler creates a new index handler. inserter may be nil; the
// re-embed endpoint then reports the queue as unavailable.
func NewIndexHandler(service IndexService, inserter jobs.JobInserter) *IndexHandler {
	return &IndexHandler{service: service, inserter: inserter}
}

// TriggerIndexRequest is the body for POST /v1/index/rebuild. An empty body
// is treated as a missing-only run.
type TriggerIndexRequest struct {
	Full bool `json:"full"`
}

// TriggerIndexResponse reports whether a run was started and how many
// entities it covers.
type TriggerIndexResponse struct {
	Outcome string `json:"outcome"`
	Total   int    `json:"total"`
}

// IndexStatusResponse is the progress snapshot for GET /v1/index/status.
type IndexStatusResponse struct {
	models.IndexingProgress

	PercentComplete float64 `json:"percent_complete"`
}

// Trigger handles POST /v1/index/rebuild.
func (h *IndexHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerIndexRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	outcome, total, err := h.service.Trigger(r.Context(), req.Full)
	if err != nil {
		if errors.Is(err, indexer.ErrAlreadyRunning) {
			response.RespondConflict(w, "An indexing run is already in progress")

			return
		}

		response.RespondInternalServerError(w, "Failed to start indexing run")

		return
	}

	status := http.StatusAccepted
	if outcome == indexer.TriggerNothingToDo {
		status = http.StatusOK
	}

	response.RespondJSON(w, status, TriggerIndexResponse{
		Outcome: string(outcome),
		Total:   total,
	})
}

// Status handles GET /v1/index/status.
func (h *IndexHandler) Status(w http.ResponseWriter, _ *http.Request) {
	progress := h.service.Status()

	response.RespondJSON(w, http.StatusOK, IndexStatusResponse{
		IndexingProgress: progress,
		PercentComplete:  progress.PercentComplete(),
	})
}

// Reembed handles POST /v1/index/entities/{kind}/{id}: enqueue a re-embed
// for one entity after its text changed.
func (h *IndexHandler) Reembed(w http.ResponseWriter, r *http.Request) {
	if h.inserter == nil {
		response.RespondError(w, http.StatusServiceUnavailable, "Queue Unavailable",
			"The embedding job queue is not enabled")

		return
	}

	kind := models.EntityKind(r.PathValue("kind"))
	if !kind.Valid() {
		response.RespondUnprocessableEntity(w, "unknown entity kind: "+string(kind))

		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondUnprocessableEntity(w, "id must be a UUID")

		return
	}

	if err := h.inserter.InsertEntityEmbeddingJob(r.Context(), jobs.EntityEmbeddingArgs{
		EntityID:   id,
		EntityKind: kind,
	}); err != nil {
		response.RespondInternalServerError(w, "Failed to enqueue re-embed job")

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

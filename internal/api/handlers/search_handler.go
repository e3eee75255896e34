// Package handlers wires the HTTP surface to the search, indexing, analytics
// and settings services.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/testvault/portal/internal/api/response"
	"github.com/testvault/portal/internal/search"
)

// SearchService resolves one natural-language query into a navigation decision.
type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// SearchHandler handles POST /v1/search.
type SearchHandler struct {
	service  SearchService
	validate *validator.Validate
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SearchRequest is the body for POST /v1/search.
// API contract uses camelCase (requesterId).
type SearchRequest struct {
	Query       string `json:"query"       validate:"required,min=2,max=500"`
	RequesterID string `json:"requesterId" validate:"required,uuid"` //nolint:tagliatelle // API contract
}

// Search handles POST /v1/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.RespondError(w, http.StatusRequestEntityTooLarge, "Request Too Large", "Request body exceeds the size limit")

			return
		}

		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	// Trim before validating so an all-whitespace query fails the length
	// bound instead of reaching the classifier.
	req.Query = strings.TrimSpace(req.Query)

	if err := h.validate.Struct(req); err != nil {
		response.RespondUnprocessableEntity(w, validationDetail(err))

		return
	}

	requesterID, err := uuid.Parse(req.RequesterID)
	if err != nil {
		response.RespondUnprocessableEntity(w, "requesterId must be a UUID")

		return
	}

	result, err := h.service.Search(r.Context(), search.Request{
		Query:       req.Query,
		RequesterID: requesterID,
	})
	if err != nil {
		response.RespondInternalServerError(w, "Search failed")

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// validationDetail flattens a validator error into one human-readable line.
func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Invalid request"
	}

	fe := fieldErrs[0]

	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " is below the minimum length"
	case "max":
		return fe.Field() + " exceeds the maximum length"
	case "uuid4", "uuid":
		return fe.Field() + " must be a UUID"
	default:
		return fe.Field() + " is invalid"
	}
}

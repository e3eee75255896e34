package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/testvault/portal/internal/api/response"
	"github.com/testvault/portal/internal/service"
)

// SettingsService reads and writes the runtime retrieval knobs.
type SettingsService interface {
	All(ctx context.Context) map[string]string
	Set(ctx context.Context, key, value string) error
}

// SettingsHandler handles GET and PUT /v1/settings.
type SettingsHandler struct {
	service SettingsService
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// Get handles GET /v1/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.RespondJSON(w, http.StatusOK, h.service.All(r.Context()))
}

// Update handles PUT /v1/settings. The body is a flat string map; every key
// must be a known setting and every value must parse for that setting.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&updates); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if len(updates) == 0 {
		response.RespondBadRequest(w, "No settings provided")

		return
	}

	for key, value := range updates {
		if detail, ok := validateSetting(key, value); !ok {
			response.RespondUnprocessableEntity(w, detail)

			return
		}
	}

	for key, value := range updates {
		if err := h.service.Set(r.Context(), key, value); err != nil {
			response.RespondInternalServerError(w, "Failed to save settings")

			return
		}
	}

	response.RespondJSON(w, http.StatusOK, h.service.All(r.Context()))
}

// validateSetting checks one key/value pair before anything is written, so a
// bad pair rejects the whole update.
func validateSetting(key, value string) (string, bool) {
	switch key {
	case service.SettingSimilarityFloor, service.SettingConfidenceFloor, service.SettingSemanticWeight:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return key + " must be a number between 0 and 1", false
		}
	case service.SettingCacheTTLSeconds, service.SettingMaxFilterResults:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return key + " must be a positive integer", false
		}
	default:
		return "unknown setting: " + key, false
	}

	return "", true
}

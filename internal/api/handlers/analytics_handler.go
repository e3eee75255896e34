package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/form/v4"

	"github.com/testvault/portal/internal/api/response"
	"github.com/testvault/portal/internal/models"
)

// defaultAnalyticsWindow is the lookback used when no from/to is given.
const defaultAnalyticsWindow = 7 * 24 * time.Hour

// AnalyticsSource aggregates usage log rows over a time window.
type AnalyticsSource interface {
	Aggregate(ctx context.Context, from, to time.Time) (*models.SearchAnalytics, error)
}

// AnalyticsHandler handles GET /v1/analytics/search.
type AnalyticsHandler struct {
	source  AnalyticsSource
	decoder *form.Decoder
	now     func() time.Time
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(source AnalyticsSource) *AnalyticsHandler {
	decoder := form.NewDecoder()
	decoder.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		return time.Parse(time.RFC3339, vals[0])
	}, time.Time{})

	return &AnalyticsHandler{source: source, decoder: decoder, now: time.Now}
}

// analyticsQuery is the query string for GET /v1/analytics/search.
// Timestamps are RFC 3339.
type analyticsQuery struct {
	From time.Time `form:"from"`
	To   time.Time `form:"to"`
}

// Search handles GET /v1/analytics/search.
func (h *AnalyticsHandler) Search(w http.ResponseWriter, r *http.Request) {
	var query analyticsQuery

	if err := h.decoder.Decode(&query, r.URL.Query()); err != nil {
		response.RespondBadRequest(w, "from and to must be RFC 3339 timestamps")

		return
	}

	if query.To.IsZero() {
		query.To = h.now()
	}

	if query.From.IsZero() {
		query.From = query.To.Add(-defaultAnalyticsWindow)
	}

	if !query.From.Before(query.To) {
		response.RespondBadRequest(w, "from must be before to")

		return
	}

	analytics, err := h.source.Aggregate(r.Context(), query.From, query.To)
	if err != nil {
		response.RespondInternalServerError(w, "Failed to aggregate search analytics")

		return
	}

	response.RespondJSON(w, http.StatusOK, analytics)
}

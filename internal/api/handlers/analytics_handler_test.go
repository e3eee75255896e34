package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testvault/portal/internal/models"
)

type mockAnalyticsSource struct {
	aggregateFunc func(ctx context.Context, from, to time.Time) (*models.SearchAnalytics, error)
}

func (m *mockAnalyticsSource) Aggregate(ctx context.Context, from, to time.Time) (*models.SearchAnalytics, error) {
	if m.aggregateFunc != nil {
		return m.aggregateFunc(ctx, from, to)
	}

	return &models.SearchAnalytics{From: from, To: to}, nil
}

func TestAnalyticsHandler_Search(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	newHandler := func(source AnalyticsSource) *AnalyticsHandler {
		handler := NewAnalyticsHandler(source)
		handler.now = func() time.Time { return now }

		return handler
	}

	t.Run("explicit window is passed through", func(t *testing.T) {
		var gotFrom, gotTo time.Time

		handler := newHandler(&mockAnalyticsSource{
			aggregateFunc: func(_ context.Context, from, to time.Time) (*models.SearchAnalytics, error) {
				gotFrom, gotTo = from, to

				return &models.SearchAnalytics{From: from, To: to, TotalSearches: 12}, nil
			},
		})

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/analytics/search?from=2026-03-01T00:00:00Z&to=2026-03-08T00:00:00Z", http.NoBody)
		rec := httptest.NewRecorder()

		handler.Search(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), gotFrom)
		assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), gotTo)

		var resp models.SearchAnalytics
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 12, resp.TotalSearches)
	})

	t.Run("missing window defaults to the last seven days", func(t *testing.T) {
		var gotFrom, gotTo time.Time

		handler := newHandler(&mockAnalyticsSource{
			aggregateFunc: func(_ context.Context, from, to time.Time) (*models.SearchAnalytics, error) {
				gotFrom, gotTo = from, to

				return &models.SearchAnalytics{From: from, To: to}, nil
			},
		})

		req := httptest.NewRequest(http.MethodGet, "http://test/v1/analytics/search", http.NoBody)
		rec := httptest.NewRecorder()

		handler.Search(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, now, gotTo)
		assert.Equal(t, now.Add(-defaultAnalyticsWindow), gotFrom)
	})

	t.Run("malformed timestamp returns 400", func(t *testing.T) {
		handler := newHandler(&mockAnalyticsSource{})

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/analytics/search?from=yesterday", http.NoBody)
		rec := httptest.NewRecorder()

		handler.Search(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted window returns 400", func(t *testing.T) {
		handler := newHandler(&mockAnalyticsSource{})

		req := httptest.NewRequest(http.MethodGet,
			"http://test/v1/analytics/search?from=2026-03-08T00:00:00Z&to=2026-03-01T00:00:00Z", http.NoBody)
		rec := httptest.NewRecorder()

		handler.Search(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("aggregate failure returns 500", func(t *testing.T) {
		handler := newHandler(&mockAnalyticsSource{
			aggregateFunc: func(_ context.Context, _, _ time.Time) (*models.SearchAnalytics, error) {
				return nil, errors.New("connection refused")
			},
		})

		req := httptest.NewRequest(http.MethodGet, "http://test/v1/analytics/search", http.NoBody)
		rec := httptest.NewRecorder()

		handler.Search(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

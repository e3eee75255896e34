// Package usage records search activity for analytics. Logging is strictly
// best-effort: a failed write never affects the search it describes.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/models"
	"github.com/testvault/portal/internal/repository"
)

// Appender is the persistence surface for usage rows.
type Appender interface {
	Append(ctx context.Context, rec models.UsageLogRecord) error
}

// Logger writes one UsageLogRecord per search.
type Logger struct {
	repo Appender
	now  func() time.Time
}

// NewLogger creates a Logger backed by repo.
func NewLogger(repo Appender) *Logger {
	return &Logger{repo: repo, now: time.Now}
}

// Record persists the row, assigning ID and timestamp when unset. Errors are
// swallowed and logged.
func (l *Logger) Record(ctx context.Context, record models.UsageLogRecord) {
	if record.ID == uuid.Nil {
		record.ID = repository.NewUsageLogID()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = l.now()
	}

	if err := l.repo.Append(ctx, record); err != nil {
		slog.Warn("usage log write failed", "requester_id", record.RequesterID, "error", err)
	}
}

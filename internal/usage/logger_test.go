package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/testvault/portal/internal/models"
)

type mockAppender struct {
	appendFunc func(ctx context.Context, rec models.UsageLogRecord) error
	records    []models.UsageLogRecord
}

func (m *mockAppender) Append(ctx context.Context, rec models.UsageLogRecord) error {
	m.records = append(m.records, rec)

	if m.appendFunc != nil {
		return m.appendFunc(ctx, rec)
	}

	return nil
}

func TestLoggerRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns id and timestamp when unset", func(t *testing.T) {
		appender := &mockAppender{}
		logger := NewLogger(appender)

		logger.Record(ctx, models.UsageLogRecord{Query: "open issues"})

		assert.Len(t, appender.records, 1)
		assert.NotEqual(t, uuid.Nil, appender.records[0].ID)
		assert.False(t, appender.records[0].CreatedAt.IsZero())
	})

	t.Run("write failure is swallowed", func(t *testing.T) {
		appender := &mockAppender{
			appendFunc: func(context.Context, models.UsageLogRecord) error {
				return errors.New("table missing")
			},
		}

		assert.NotPanics(t, func() {
			NewLogger(appender).Record(ctx, models.UsageLogRecord{Query: "q"})
		})
	})
}

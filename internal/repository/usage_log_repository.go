package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testvault/portal/internal/models"
)

const recentQueriesLimit = 10

// UsageLogRepository handles the append-only search_usage_log table and the
// read-only analytics aggregates computed over it.
type UsageLogRepository struct {
	db *pgxpool.Pool
}

// NewUsageLogRepository creates a new usage log repository.
func NewUsageLogRepository(db *pgxpool.Pool) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// Append writes one usage row. Rows are never mutated after creation.
func (r *UsageLogRepository) Append(ctx context.Context, rec models.UsageLogRecord) error {
	filters, err := json.Marshal(rec.Filters)
	if err != nil {
		return fmt.Errorf("usage log encode filters: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO search_usage_log (
			id, requester_id, query, intent, target_path, filters, semantic_query,
			prompt_tokens, completion_tokens, result_count, confidence,
			cache_hit, latency_ms, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.RequesterID, rec.Query, rec.Intent, rec.TargetPath, filters,
		rec.SemanticQuery, rec.Usage.PromptTokens, rec.Usage.CompletionTokens,
		rec.ResultCount, rec.Confidence, rec.CacheHit, rec.LatencyMS, rec.Error,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("usage log append: %w", err)
	}

	return nil
}

// Aggregate computes the time-windowed analytics over [from, to). Read-only.
func (r *UsageLogRepository) Aggregate(ctx context.Context, from, to time.Time) (*models.SearchAnalytics, error) {
	out := models.SearchAnalytics{
		From:         from,
		To:           to,
		IntentCounts: map[string]int{},
	}

	err := r.db.QueryRow(ctx, `
		SELECT count(*),
		       COALESCE(sum(prompt_tokens + completion_tokens), 0),
		       COALESCE(avg(latency_ms), 0),
		       COALESCE(avg(CASE WHEN cache_hit THEN 1.0 ELSE 0.0 END), 0),
		       COALESCE(avg(confidence), 0),
		       count(*) FILTER (WHERE error IS NOT NULL),
		       count(*) FILTER (WHERE semantic_query != '')
		FROM search_usage_log
		WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(
		&out.TotalSearches, &out.TotalTokens, &out.AvgLatencyMS, &out.CacheHitRate,
		&out.AvgConfidence, &out.ErroredSearches, &out.SemanticSearches,
	)
	if err != nil {
		return nil, fmt.Errorf("usage log totals: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT requester_id, count(*), COALESCE(sum(prompt_tokens + completion_tokens), 0)
		FROM search_usage_log
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY requester_id
		ORDER BY count(*) DESC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("usage log requester breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ru models.RequesterUsage
		if err := rows.Scan(&ru.RequesterID, &ru.Searches, &ru.Tokens); err != nil {
			return nil, fmt.Errorf("scan requester usage: %w", err)
		}

		out.ByRequester = append(out.ByRequester, ru)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating requester usage: %w", err)
	}

	intentRows, err := r.db.Query(ctx, `
		SELECT intent, count(*)
		FROM search_usage_log
		WHERE created_at >= $1 AND created_at < $2 AND intent != ''
		GROUP BY intent`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("usage log intent distribution: %w", err)
	}
	defer intentRows.Close()

	for intentRows.Next() {
		var (
			intent string
			count  int
		)

		if err := intentRows.Scan(&intent, &count); err != nil {
			return nil, fmt.Errorf("scan intent count: %w", err)
		}

		out.IntentCounts[intent] = count
	}

	if err := intentRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating intent counts: %w", err)
	}

	queryRows, err := r.db.Query(ctx, `
		SELECT query
		FROM search_usage_log
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3`,
		from, to, recentQueriesLimit)
	if err != nil {
		return nil, fmt.Errorf("usage log recent queries: %w", err)
	}
	defer queryRows.Close()

	for queryRows.Next() {
		var q string
		if err := queryRows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan recent query: %w", err)
		}

		out.RecentQueries = append(out.RecentQueries, q)
	}

	if err := queryRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent queries: %w", err)
	}

	return &out, nil
}

// NewUsageLogID returns a time-ordered id for a usage row.
func NewUsageLogID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

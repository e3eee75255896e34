package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testvault/portal/internal/apperrors"
	"github.com/testvault/portal/internal/models"
)

// ErrCacheMiss is returned when no live cache row exists for the key.
// Expired and unreadable rows are reported as misses, never as failures.
// It matches apperrors.ErrNotFound under errors.Is.
var ErrCacheMiss = fmt.Errorf("search cache miss: %w", apperrors.ErrNotFound)

// SearchCacheRepository is the durable classification cache tier, keyed by
// the hash of normalized query + requester identity. Concurrent upserts rely
// on the store's own consistency; last writer wins (cache rows are not
// authoritative state).
type SearchCacheRepository struct {
	db *pgxpool.Pool
}

// NewSearchCacheRepository creates a new search cache repository.
func NewSearchCacheRepository(db *pgxpool.Pool) *SearchCacheRepository {
	return &SearchCacheRepository{db: db}
}

// Get returns the live entry for key and records the hit (hit_count
// incremented, last_access_at touched) in the same statement. Expired rows
// and rows whose payload no longer decodes return ErrCacheMiss.
func (r *SearchCacheRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var (
		entry   models.CacheEntry
		payload []byte
	)

	err := r.db.QueryRow(ctx, `
		UPDATE search_cache
		SET hit_count = hit_count + 1, last_access_at = now()
		WHERE key = $1 AND expires_at > now()
		RETURNING key, result, prompt_tokens, completion_tokens,
		          created_at, expires_at, hit_count, last_access_at`,
		key,
	).Scan(
		&entry.Key, &payload, &entry.Usage.PromptTokens, &entry.Usage.CompletionTokens,
		&entry.CreatedAt, &entry.ExpiresAt, &entry.HitCount, &entry.LastAccessAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheMiss
		}

		return nil, fmt.Errorf("search cache get: %w", err)
	}

	if err := json.Unmarshal(payload, &entry.Result); err != nil {
		// Corrupt payload: drop the row and treat as a miss.
		slog.Warn("search cache: dropping unreadable entry", "key", key, "error", err)

		if _, delErr := r.db.Exec(ctx, `DELETE FROM search_cache WHERE key = $1`, key); delErr != nil {
			slog.Error("search cache: delete corrupt entry failed", "key", key, "error", delErr)
		}

		return nil, ErrCacheMiss
	}

	return &entry, nil
}

// Put upserts the entry for key with the given TTL. On conflict the previous
// row is replaced wholesale and its hit accounting restarts.
func (r *SearchCacheRepository) Put(
	ctx context.Context, key string, result models.ClassificationResult, usage models.TokenUsage, ttl time.Duration,
) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("search cache encode: %w", err)
	}

	now := time.Now()

	_, err = r.db.Exec(ctx, `
		INSERT INTO search_cache (key, result, prompt_tokens, completion_tokens,
		                          created_at, expires_at, hit_count, last_access_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $5)
		ON CONFLICT (key)
		DO UPDATE SET result = EXCLUDED.result,
		              prompt_tokens = EXCLUDED.prompt_tokens,
		              completion_tokens = EXCLUDED.completion_tokens,
		              created_at = EXCLUDED.created_at,
		              expires_at = EXCLUDED.expires_at,
		              hit_count = 0,
		              last_access_at = EXCLUDED.last_access_at`,
		key, payload, usage.PromptTokens, usage.CompletionTokens, now, now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("search cache put: %w", err)
	}

	return nil
}

// Touch records a hit against key without reading the payload. Used when a
// faster tier served the entry, so durable hit accounting stays accurate.
func (r *SearchCacheRepository) Touch(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE search_cache
		SET hit_count = hit_count + 1, last_access_at = now()
		WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("search cache touch: %w", err)
	}

	return nil
}

// PurgeExpired deletes rows past their TTL and returns how many were removed.
func (r *SearchCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("search cache purge: %w", err)
	}

	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/testvault/portal/internal/apperrors"
	"github.com/testvault/portal/internal/models"
)

// ErrEntityNotFound is returned when no entity row exists for the given kind
// and id. It matches apperrors.ErrNotFound under errors.Is.
var ErrEntityNotFound = fmt.Errorf("entity not found: %w", apperrors.ErrNotFound)

// EntityFilters are the deterministic predicates the structured filter engine
// narrows a candidate set with. Nil fields are not applied.
type EntityFilters struct {
	Status        *string // case-insensitive equality
	Priority      *string // case-insensitive equality
	ModuleID      *uuid.UUID
	AssigneeID    *uuid.UUID
	ReleaseID     *uuid.UUID
	TitleContains *string // case-insensitive substring
}

// EmbeddingWrite is one vector+model-tag pair written back to an entity row.
type EmbeddingWrite struct {
	EntityID uuid.UUID
	Vector   []float32
	Model    string
}

// EntitiesRepository handles data access for the searchable entity tables
// (test_cases, issues, stories). The embedding vector and its model tag live
// on the entity row and are always written together.
type EntitiesRepository struct {
	db *pgxpool.Pool
}

// NewEntitiesRepository creates a new entities repository.
func NewEntitiesRepository(db *pgxpool.Pool) *EntitiesRepository {
	return &EntitiesRepository{db: db}
}

// stepsColumn returns the steps select expression for the kind. Only test
// cases carry steps; the other tables select NULL so scans stay uniform.
func stepsColumn(kind models.EntityKind) string {
	if kind == models.EntityKindTestCase {
		return "steps"
	}

	return "NULL::text AS steps"
}

// FilterIDs returns entity IDs of the given kind matching every set predicate,
// capped at limit. Result order is the table scan order and not significant.
func (r *EntitiesRepository) FilterIDs(ctx context.Context, kind models.EntityKind, filters EntityFilters, limit int) ([]uuid.UUID, error) {
	var (
		conds []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)

		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Status != nil {
		conds = append(conds, fmt.Sprintf("lower(status) = lower(%s)", arg(*filters.Status)))
	}

	if filters.Priority != nil {
		conds = append(conds, fmt.Sprintf("lower(priority) = lower(%s)", arg(*filters.Priority)))
	}

	if filters.ModuleID != nil {
		conds = append(conds, fmt.Sprintf("module_id = %s", arg(*filters.ModuleID)))
	}

	if filters.AssigneeID != nil {
		conds = append(conds, fmt.Sprintf("assignee_id = %s", arg(*filters.AssigneeID)))
	}

	if filters.ReleaseID != nil {
		conds = append(conds, fmt.Sprintf("release_id = %s", arg(*filters.ReleaseID)))
	}

	if filters.TitleContains != nil {
		conds = append(conds, fmt.Sprintf("title ILIKE '%%' || %s || '%%'", arg(*filters.TitleContains)))
	}

	query := "SELECT id FROM " + kind.Table()
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %s", arg(limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter %s ids: %w", kind, err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", kind, err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s ids: %w", kind, err)
	}

	return ids, nil
}

// GetEntity returns the searchable projection for one entity row.
// Returns ErrEntityNotFound when no row exists.
func (r *EntitiesRepository) GetEntity(ctx context.Context, kind models.EntityKind, id uuid.UUID) (*models.SearchableEntity, error) {
	query := fmt.Sprintf(`
		SELECT e.id, e.title, e.status, e.priority, e.module_id, e.assignee_id,
		       e.release_id, e.description, %s, m.name, e.embedding_model,
		       e.created_at, e.updated_at
		FROM %s e
		LEFT JOIN modules m ON m.id = e.module_id
		WHERE e.id = $1`,
		strings.Replace(stepsColumn(kind), "steps", "e.steps", 1), kind.Table())

	e := models.SearchableEntity{Kind: kind}

	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Title, &e.Status, &e.Priority, &e.ModuleID, &e.AssigneeID,
		&e.ReleaseID, &e.Description, &e.Steps, &e.ModuleName, &e.EmbeddingModel,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntityNotFound
		}

		return nil, fmt.Errorf("get %s: %w", kind, err)
	}

	return &e, nil
}

// embeddingCandidateCond is the WHERE fragment for rows needing (re)embedding
// under "missing or stale only" mode: no vector yet, or a vector produced by
// a different model than the one configured now.
const embeddingCandidateCond = "(embedding IS NULL OR embedding_model IS DISTINCT FROM $1)"

// CountEmbeddingCandidates returns how many rows of the kind need embedding.
// With full=true every row with a non-empty title counts (full regenerate).
func (r *EntitiesRepository) CountEmbeddingCandidates(ctx context.Context, kind models.EntityKind, model string, full bool) (int, error) {
	query := "SELECT count(*) FROM " + kind.Table() + " WHERE trim(title) != ''"
	args := []any{}

	if !full {
		query += " AND " + embeddingCandidateCond
		args = append(args, model)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s embedding candidates: %w", kind, err)
	}

	return count, nil
}

// ListEmbeddingCandidates returns the next page of rows needing embedding,
// ordered by id and starting strictly after afterID (keyset paging, so pages
// stay cheap regardless of table size).
func (r *EntitiesRepository) ListEmbeddingCandidates(
	ctx context.Context, kind models.EntityKind, model string, full bool, afterID uuid.UUID, limit int,
) ([]models.SearchableEntity, error) {
	query := fmt.Sprintf(`
		SELECT e.id, e.title, e.status, e.priority, e.module_id, e.assignee_id,
		       e.release_id, e.description, %s, m.name
		FROM %s e
		LEFT JOIN modules m ON m.id = e.module_id
		WHERE trim(e.title) != '' AND e.id > $1`,
		strings.Replace(stepsColumn(kind), "steps", "e.steps", 1), kind.Table())

	args := []any{afterID}

	if !full {
		args = append(args, model)
		query += " AND (e.embedding IS NULL OR e.embedding_model IS DISTINCT FROM $2)"
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY e.id LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s embedding candidates: %w", kind, err)
	}
	defer rows.Close()

	var entities []models.SearchableEntity

	for rows.Next() {
		e := models.SearchableEntity{Kind: kind}
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Status, &e.Priority, &e.ModuleID, &e.AssigneeID,
			&e.ReleaseID, &e.Description, &e.Steps, &e.ModuleName,
		); err != nil {
			return nil, fmt.Errorf("scan %s embedding candidate: %w", kind, err)
		}

		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s embedding candidates: %w", kind, err)
	}

	return entities, nil
}

// WriteEmbeddings persists one sub-batch of vectors in a single transaction:
// either every row in the batch gets its vector and model tag, or none does.
func (r *EntitiesRepository) WriteEmbeddings(ctx context.Context, kind models.EntityKind, writes []EmbeddingWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin embedding write: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	query := "UPDATE " + kind.Table() + " SET embedding = $2, embedding_model = $3, updated_at = now() WHERE id = $1"

	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(query, w.EntityID, pgvector.NewVector(w.Vector), w.Model)
	}

	results := tx.SendBatch(ctx, batch)

	for range writes {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()

			return fmt.Errorf("write %s embedding: %w", kind, err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("close embedding batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit embedding write: %w", err)
	}

	return nil
}

// ClearEmbedding removes the vector and model tag together (the invariant is
// both set or both unset). Used when an entity's embeddable text goes empty.
func (r *EntitiesRepository) ClearEmbedding(ctx context.Context, kind models.EntityKind, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		"UPDATE "+kind.Table()+" SET embedding = NULL, embedding_model = NULL, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("clear %s embedding: %w", kind, err)
	}

	return nil
}

// NearestByEmbedding returns entity IDs and similarity scores (0..1) for the
// nearest neighbors to queryEmbedding among rows embedded with the given
// model. Uses cosine distance (<=>); score = 1 - distance. allowIDs, when
// non-empty, restricts candidates to that set. probes tunes the ivfflat
// recall/latency trade-off for this query only (SET LOCAL, so it is scoped to
// the transaction). The index is approximate: callers must tolerate a small
// fraction of missed neighbors and unstable ordering across index rebuilds.
func (r *EntitiesRepository) NearestByEmbedding(
	ctx context.Context, kind models.EntityKind, model string, queryEmbedding []float32,
	allowIDs []uuid.UUID, minScore float64, limit, probes int,
) ([]models.EntityWithScore, error) {
	queryVec := pgvector.NewVector(queryEmbedding)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin nearest query: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if probes > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
			return nil, fmt.Errorf("set ivfflat probes: %w", err)
		}
	}

	query := fmt.Sprintf(`
		SELECT id, (1 - (embedding <=> $1)) AS score
		FROM %s
		WHERE embedding IS NOT NULL AND embedding_model = $2
		  AND (1 - (embedding <=> $1)) >= $3`, kind.Table())

	args := []any{queryVec, model, minScore}

	if len(allowIDs) > 0 {
		args = append(args, allowIDs)
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest %s: %w", kind, err)
	}

	var results []models.EntityWithScore

	for rows.Next() {
		var row models.EntityWithScore
		if err := rows.Scan(&row.ID, &row.Score); err != nil {
			rows.Close()

			return nil, fmt.Errorf("scan nearest %s: %w", kind, err)
		}

		results = append(results, row)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest %s: %w", kind, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit nearest query: %w", err)
	}

	return results, nil
}

// Package repository provides pgx-backed data access for the search subsystem.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testvault/portal/internal/models"
)

// NavigationTargetsRepository handles data access for the navigation_targets table.
type NavigationTargetsRepository struct {
	db *pgxpool.Pool
}

// NewNavigationTargetsRepository creates a new navigation targets repository.
func NewNavigationTargetsRepository(db *pgxpool.Pool) *NavigationTargetsRepository {
	return &NavigationTargetsRepository{db: db}
}

// ListActive returns all active navigation targets ordered by display order.
// filter_fields is stored as JSONB; the array columns are Postgres text[].
func (r *NavigationTargetsRepository) ListActive(ctx context.Context) ([]models.NavigationTarget, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, key, name, path_template, entity_kind, filter_fields,
		       searchable_fields, capabilities, example_queries, active,
		       display_order, updated_at
		FROM navigation_targets
		WHERE active
		ORDER BY display_order, key`)
	if err != nil {
		return nil, fmt.Errorf("list navigation targets: %w", err)
	}
	defer rows.Close()

	var targets []models.NavigationTarget

	for rows.Next() {
		var (
			t            models.NavigationTarget
			entityKind   *string
			filterFields []byte
		)

		err := rows.Scan(
			&t.ID, &t.Key, &t.Name, &t.PathTemplate, &entityKind, &filterFields,
			&t.SearchableFields, &t.Capabilities, &t.ExampleQueries, &t.Active,
			&t.DisplayOrder, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan navigation target: %w", err)
		}

		if entityKind != nil {
			kind := models.EntityKind(*entityKind)
			if kind.Valid() {
				t.EntityKind = &kind
			}
		}

		if len(filterFields) > 0 {
			if err := json.Unmarshal(filterFields, &t.FilterFields); err != nil {
				return nil, fmt.Errorf("decode filter fields for %q: %w", t.Key, err)
			}
		}

		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating navigation targets: %w", err)
	}

	return targets, nil
}

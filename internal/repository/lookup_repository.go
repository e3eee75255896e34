package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/testvault/portal/internal/models"
)

// LookupRepository reads the lightweight rows the registry resolves free-text
// references against: modules, active users, and releases. The rows are
// rebuilt from the source tables on registry cache expiry and never
// independently persisted.
type LookupRepository struct {
	db *pgxpool.Pool
}

// NewLookupRepository creates a new lookup repository.
func NewLookupRepository(db *pgxpool.Pool) *LookupRepository {
	return &LookupRepository{db: db}
}

// ListModules returns all modules with their alias lists, ordered by name.
func (r *LookupRepository) ListModules(ctx context.Context) ([]models.ModuleRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(aliases, '{}')
		FROM modules
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []models.ModuleRef

	for rows.Next() {
		var m models.ModuleRef
		if err := rows.Scan(&m.ID, &m.Name, &m.Aliases); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}

		modules = append(modules, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating modules: %w", err)
	}

	return modules, nil
}

// ListActiveUsers returns all active users ordered by name.
func (r *LookupRepository) ListActiveUsers(ctx context.Context) ([]models.UserRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, email
		FROM users
		WHERE active
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.UserRef

	for rows.Next() {
		var u models.UserRef
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}

// ListReleases returns all releases newest target date first (null dates last),
// the order the current-release policy and release resolution expect.
func (r *LookupRepository) ListReleases(ctx context.Context) ([]models.ReleaseRef, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, version, status, target_date
		FROM releases
		ORDER BY target_date DESC NULLS LAST, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	var releases []models.ReleaseRef

	for rows.Next() {
		var rel models.ReleaseRef
		if err := rows.Scan(&rel.ID, &rel.Version, &rel.Status, &rel.TargetDate); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}

		releases = append(releases, rel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating releases: %w", err)
	}

	return releases, nil
}

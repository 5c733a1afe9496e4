package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/platform/db"
	"github.com/mealflow/mealflow/internal/shared"
)

const uniqueViolation = "23505"

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Create(ctx context.Context, role Role) (*Role, error)
	GetByID(ctx context.Context, id int64) (*Role, error)
	GetActiveByName(ctx context.Context, name string) (*Role, error)
	ListActive(ctx context.Context, filters ListFilters) ([]Role, int, error)
	Update(ctx context.Context, role Role) (*Role, error)
	Deactivate(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, permissions, hierarchy_level, is_active, created_by, created_at, updated_at`

func scanRole(row pgx.Row) (*Role, error) {
	var r Role
	var perms []string
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &perms, &r.HierarchyLevel, &r.IsActive, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Permissions = make([]catalog.ID, len(perms))
	for i, p := range perms {
		r.Permissions[i] = catalog.ID(p)
	}
	return &r, nil
}

func permStrings(perms []catalog.ID) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Create inserts a new role. Name uniqueness among active roles is
// enforced by a partial unique index; a violation maps to
// ErrDuplicateName.
func (r *Repository) Create(ctx context.Context, role Role) (*Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, name_folded, description, permissions, hierarchy_level, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING `+roleColumns,
		role.Name, FoldName(role.Name), role.Description, permStrings(role.Permissions), role.HierarchyLevel, role.CreatedBy)
	created, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("roles: create: %w", err)
	}
	return created, nil
}

// GetByID fetches a role regardless of its active flag, so deactivated
// roles stay retrievable for history views.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("roles: get by id: %w", err)
	}
	return role, nil
}

// GetActiveByName fetches an active role by case-insensitive name.
func (r *Repository) GetActiveByName(ctx context.Context, name string) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name_folded = $1 AND is_active`, FoldName(name))
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("roles: get by name: %w", err)
	}
	return role, nil
}

var sortColumns = map[string]string{
	"name":            "name_folded",
	"hierarchy_level": "hierarchy_level",
	"created_at":      "created_at",
}

// ListActive returns active roles plus the total active count.
func (r *Repository) ListActive(ctx context.Context, filters ListFilters) ([]Role, int, error) {
	column, ok := sortColumns[filters.SortBy]
	if !ok {
		column = "name_folded"
	}
	dir := "ASC"
	if filters.SortDir == "desc" {
		dir = "DESC"
	}
	page := shared.NewPagination(filters.Page, filters.PerPage, 0)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("roles: count active: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+roleColumns+` FROM roles
		WHERE is_active
		ORDER BY `+column+` `+dir+`, id
		LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("roles: list active: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update rewrites the mutable fields of a role.
func (r *Repository) Update(ctx context.Context, role Role) (*Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, name_folded = $3, description = $4, permissions = $5, hierarchy_level = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, FoldName(role.Name), role.Description, permStrings(role.Permissions), role.HierarchyLevel, time.Now())
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("roles: update: %w", err)
	}
	return updated, nil
}

// Deactivate soft-deletes a role. The role row is locked before the
// active-assignment count is taken so a concurrent Assign targeting the
// same role (which locks the row FOR SHARE) cannot race past the check.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var isActive bool
		err := tx.QueryRow(ctx, `SELECT is_active FROM roles WHERE id = $1 FOR UPDATE`, id).Scan(&isActive)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("roles: lock role: %w", err)
		}
		if !isActive {
			return shared.ErrNotFound
		}

		var count int
		err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM role_assignments WHERE role_id = $1 AND is_active`, id).Scan(&count)
		if err != nil {
			return fmt.Errorf("roles: count assignments: %w", err)
		}
		if count > 0 {
			return &InUseError{ActiveAssignments: count}
		}

		_, err = tx.Exec(ctx, `UPDATE roles SET is_active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now())
		if err != nil {
			return fmt.Errorf("roles: deactivate: %w", err)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/roles"
)

// TxRepository exposes the operations that make up the atomic
// assignment transition.
type TxRepository interface {
	// LockUser serialises concurrent transitions for one user. The lock
	// is released when the surrounding transaction ends.
	LockUser(ctx context.Context, userID string) error
	// GetActiveRoleForShare loads the target role and takes a shared
	// row lock so a concurrent role deactivation cannot race past its
	// zero-assignments check.
	GetActiveRoleForShare(ctx context.Context, roleID int64) (*roles.Role, error)
	// CloseActive ends the user's current active assignment, if any,
	// returning it together with its role name.
	CloseActive(ctx context.Context, userID string, endedAt time.Time) (*RoleAssignment, error)
	Insert(ctx context.Context, a RoleAssignment) (*RoleAssignment, error)
	// Tx exposes the transaction for audit writes that must share it.
	Tx() pgx.Tx
}

// RepositoryPort defines data access methods for assignments.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetActive(ctx context.Context, userID string) (*RoleAssignment, error)
	History(ctx context.Context, userID string, limit, offset int) ([]RoleAssignment, error)
	GetActiveRole(ctx context.Context, userID string) (*roles.Role, error)
}

// Repository provides PostgreSQL backed persistence for assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("assignments: begin tx: %w", err)
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (t *txRepo) Tx() pgx.Tx {
	return t.tx
}

func (t *txRepo) LockUser(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID)
	if err != nil {
		return fmt.Errorf("assignments: lock user: %w", err)
	}
	return nil
}

func (t *txRepo) GetActiveRoleForShare(ctx context.Context, roleID int64) (*roles.Role, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, name, description, permissions, hierarchy_level, is_active, created_by, created_at, updated_at
		FROM roles
		WHERE id = $1 AND is_active
		FOR SHARE`, roleID)

	var role roles.Role
	var perms []string
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.HierarchyLevel, &role.IsActive, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("assignments: lock role: %w", err)
	}
	role.Permissions = make([]catalog.ID, len(perms))
	for i, p := range perms {
		role.Permissions[i] = catalog.ID(p)
	}
	return &role, nil
}

func (t *txRepo) CloseActive(ctx context.Context, userID string, endedAt time.Time) (*RoleAssignment, error) {
	row := t.tx.QueryRow(ctx, `
		WITH closed AS (
			UPDATE role_assignments
			SET is_active = FALSE, end_date = COALESCE(end_date, $2)
			WHERE user_id = $1 AND is_active
			RETURNING id, user_id, role_id, start_date, end_date, assigned_by, reason, is_active, created_at
		)
		SELECT c.id, c.user_id, c.role_id, r.name, c.start_date, c.end_date, c.assigned_by, c.reason, c.is_active, c.created_at
		FROM closed c
		JOIN roles r ON r.id = c.role_id`,
		userID, endedAt)

	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("assignments: close active: %w", err)
	}
	return a, nil
}

func (t *txRepo) Insert(ctx context.Context, a RoleAssignment) (*RoleAssignment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO role_assignments (user_id, role_id, start_date, end_date, assigned_by, reason, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id, created_at`,
		a.UserID, a.RoleID, a.StartDate, a.EndDate, a.AssignedBy, a.Reason)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("assignments: insert: %w", err)
	}
	a.IsActive = true
	return &a, nil
}

const assignmentSelect = `
	SELECT a.id, a.user_id, a.role_id, r.name, a.start_date, a.end_date, a.assigned_by, a.reason, a.is_active, a.created_at
	FROM role_assignments a
	JOIN roles r ON r.id = a.role_id`

func scanAssignment(row pgx.Row) (*RoleAssignment, error) {
	var a RoleAssignment
	if err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &a.RoleName, &a.StartDate, &a.EndDate, &a.AssignedBy, &a.Reason, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetActive returns the user's active assignment, or nil when absent.
// Absence is a valid state, not an error.
func (r *Repository) GetActive(ctx context.Context, userID string) (*RoleAssignment, error) {
	row := r.pool.QueryRow(ctx, assignmentSelect+` WHERE a.user_id = $1 AND a.is_active`, userID)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("assignments: get active: %w", err)
	}
	return a, nil
}

// History returns the user's assignments, newest first.
func (r *Repository) History(ctx context.Context, userID string, limit, offset int) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, assignmentSelect+`
		WHERE a.user_id = $1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("assignments: history: %w", err)
	}
	defer rows.Close()

	var out []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetActiveRole resolves the user's currently effective role, or nil
// when the user has no active assignment.
func (r *Repository) GetActiveRole(ctx context.Context, userID string) (*roles.Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.description, r.permissions, r.hierarchy_level, r.is_active, r.created_by, r.created_at, r.updated_at
		FROM role_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.user_id = $1 AND a.is_active`,
		userID)

	var role roles.Role
	var perms []string
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.HierarchyLevel, &role.IsActive, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("assignments: get active role: %w", err)
	}
	role.Permissions = make([]catalog.ID, len(perms))
	for i, p := range perms {
		role.Permissions[i] = catalog.ID(p)
	}
	return &role, nil
}

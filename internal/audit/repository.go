package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and
// pgx.Tx, so audit writes can join a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RepositoryPort defines data access for the audit trail.
type RepositoryPort interface {
	InsertRoleChange(ctx context.Context, q Querier, entry RoleChangeEntry) error
	InsertPermissionChange(ctx context.Context, q Querier, entry PermissionChangeEntry) error
	InsertDecision(ctx context.Context, entry DecisionEntry) error
	RoleChangeHistory(ctx context.Context, userID string, limit, offset int) ([]RoleChangeEntry, error)
	PermissionHistory(ctx context.Context, roleID int64, limit, offset int) ([]PermissionChangeEntry, error)
	PruneDecisions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repository provides PostgreSQL backed persistence for audit entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool as a Querier for standalone writes.
func (r *Repository) Pool() Querier {
	return r.pool
}

// InsertRoleChange appends one role change entry.
func (r *Repository) InsertRoleChange(ctx context.Context, q Querier, entry RoleChangeEntry) error {
	if q == nil {
		q = r.pool
	}
	_, err := q.Exec(ctx, `
		INSERT INTO role_change_log (user_id, old_role_name, new_role_name, changed_by, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.UserID, entry.OldRoleName, entry.NewRoleName, entry.ChangedBy, entry.Reason, entry.ChangedAt)
	if err != nil {
		return fmt.Errorf("audit: insert role change: %w", err)
	}
	return nil
}

// InsertPermissionChange appends one permission change entry.
func (r *Repository) InsertPermissionChange(ctx context.Context, q Querier, entry PermissionChangeEntry) error {
	if q == nil {
		q = r.pool
	}
	_, err := q.Exec(ctx, `
		INSERT INTO permission_log (role_id, permission_id, action, changed_by, change_id, changed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.RoleID, entry.PermissionID, string(entry.Action), entry.ChangedBy, entry.ChangeID)
	if err != nil {
		return fmt.Errorf("audit: insert permission change: %w", err)
	}
	return nil
}

// InsertDecision appends one permission-check outcome.
func (r *Repository) InsertDecision(ctx context.Context, entry DecisionEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO authz_decision_log (user_id, permission_id, resource, outcome, checked_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		entry.UserID, entry.PermissionID, entry.Resource, string(entry.Outcome))
	if err != nil {
		return fmt.Errorf("audit: insert decision: %w", err)
	}
	return nil
}

// RoleChangeHistory returns a user's transitions, newest first.
func (r *Repository) RoleChangeHistory(ctx context.Context, userID string, limit, offset int) ([]RoleChangeEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, old_role_name, new_role_name, changed_by, reason, changed_at
		FROM role_change_log
		WHERE user_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit: role change history: %w", err)
	}
	defer rows.Close()

	var entries []RoleChangeEntry
	for rows.Next() {
		var e RoleChangeEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.OldRoleName, &e.NewRoleName, &e.ChangedBy, &e.Reason, &e.ChangedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PermissionHistory returns a role's permission changes, newest first.
func (r *Repository) PermissionHistory(ctx context.Context, roleID int64, limit, offset int) ([]PermissionChangeEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, role_id, permission_id, action, changed_by, change_id, changed_at
		FROM permission_log
		WHERE role_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		roleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("audit: permission history: %w", err)
	}
	defer rows.Close()

	var entries []PermissionChangeEntry
	for rows.Next() {
		var e PermissionChangeEntry
		var action string
		if err := rows.Scan(&e.ID, &e.RoleID, &e.PermissionID, &action, &e.ChangedBy, &e.ChangeID, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.Action = PermissionAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneDecisions deletes decision rows older than the cutoff. The role
// change and permission logs are never pruned.
func (r *Repository) PruneDecisions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM authz_decision_log WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: prune decisions: %w", err)
	}
	return tag.RowsAffected(), nil
}

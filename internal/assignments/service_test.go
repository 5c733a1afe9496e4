package assignments

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/roles"
	"github.com/mealflow/mealflow/internal/shared"
)

type memoryRepo struct {
	roles       map[int64]*roles.Role
	assignments []*RoleAssignment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{roles: make(map[int64]*roles.Role)}
}

func (r *memoryRepo) addRole(id int64, name string, active bool) {
	r.roles[id] = &roles.Role{
		ID:             id,
		Name:           name,
		Permissions:    []catalog.ID{catalog.PermViewOrders},
		HierarchyLevel: 10,
		IsActive:       active,
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (t *memoryTx) Tx() pgx.Tx { return nil }

func (t *memoryTx) LockUser(ctx context.Context, userID string) error { return nil }

func (t *memoryTx) GetActiveRoleForShare(ctx context.Context, roleID int64) (*roles.Role, error) {
	role, ok := t.repo.roles[roleID]
	if !ok || !role.IsActive {
		return nil, ErrRoleNotFound
	}
	clone := *role
	return &clone, nil
}

func (t *memoryTx) CloseActive(ctx context.Context, userID string, endedAt time.Time) (*RoleAssignment, error) {
	for _, a := range t.repo.assignments {
		if a.UserID == userID && a.IsActive {
			a.IsActive = false
			if a.EndDate == nil {
				end := endedAt
				a.EndDate = &end
			}
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) Insert(ctx context.Context, a RoleAssignment) (*RoleAssignment, error) {
	t.repo.nextID++
	a.ID = t.repo.nextID
	a.IsActive = true
	a.CreatedAt = time.Now()
	if role, ok := t.repo.roles[a.RoleID]; ok {
		a.RoleName = role.Name
	}
	clone := a
	t.repo.assignments = append(t.repo.assignments, &clone)
	return &a, nil
}

func (r *memoryRepo) GetActive(ctx context.Context, userID string) (*RoleAssignment, error) {
	for _, a := range r.assignments {
		if a.UserID == userID && a.IsActive {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) History(ctx context.Context, userID string, limit, offset int) ([]RoleAssignment, error) {
	var out []RoleAssignment
	for i := len(r.assignments) - 1; i >= 0; i-- {
		if r.assignments[i].UserID == userID {
			out = append(out, *r.assignments[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) GetActiveRole(ctx context.Context, userID string) (*roles.Role, error) {
	active, _ := r.GetActive(ctx, userID)
	if active == nil {
		return nil, nil
	}
	role, ok := r.roles[active.RoleID]
	if !ok {
		return nil, nil
	}
	clone := *role
	return &clone, nil
}

type recordedAudit struct {
	entries []audit.RoleChangeEntry
}

func (a *recordedAudit) RecordRoleChangeIn(ctx context.Context, tx pgx.Tx, entry audit.RoleChangeEntry) error {
	if entry.OldRoleName == "" {
		entry.OldRoleName = audit.RoleNone
	}
	if entry.NewRoleName == "" {
		entry.NewRoleName = audit.RoleNone
	}
	a.entries = append(a.entries, entry)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordedAudit) {
	t.Helper()
	repo := newMemoryRepo()
	rec := &recordedAudit{}
	return NewService(repo, rec, nil, nil), repo, rec
}

func TestAssignFirstRole(t *testing.T) {
	svc, repo, rec := newTestService(t)
	repo.addRole(1, "Server", true)
	ctx := context.Background()

	a, err := svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 1, AssignedBy: "admin-1", Reason: "new hire"})
	require.NoError(t, err)
	require.True(t, a.IsActive)
	require.Equal(t, "Server", a.RoleName)
	require.False(t, a.StartDate.IsZero())

	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.RoleNone, rec.entries[0].OldRoleName)
	require.Equal(t, "Server", rec.entries[0].NewRoleName)
	require.Equal(t, "admin-1", rec.entries[0].ChangedBy)
}

func TestAssignReplacesActiveAssignment(t *testing.T) {
	svc, repo, rec := newTestService(t)
	repo.addRole(1, "Server", true)
	repo.addRole(2, "Shift Manager", true)
	ctx := context.Background()

	_, err := svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 1, AssignedBy: "admin-1"})
	require.NoError(t, err)
	_, err = svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 2, AssignedBy: "admin-1", Reason: "promotion"})
	require.NoError(t, err)

	active, err := svc.GetActiveAssignment(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), active.RoleID)

	// The replaced assignment survives as closed history.
	history, err := svc.GetHistory(ctx, "u-1", HistoryFilters{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].IsActive)
	require.False(t, history[1].IsActive)
	require.NotNil(t, history[1].EndDate)

	require.Len(t, rec.entries, 2)
	require.Equal(t, "Server", rec.entries[1].OldRoleName)
	require.Equal(t, "Shift Manager", rec.entries[1].NewRoleName)
}

func TestAssignValidation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addRole(1, "Server", true)
	repo.addRole(2, "Retired", false)
	ctx := context.Background()

	_, err := svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 1})
	require.ErrorIs(t, err, ErrAssignerRequired)

	_, err = svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 99, AssignedBy: "admin-1"})
	require.ErrorIs(t, err, ErrRoleNotFound)

	_, err = svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 2, AssignedBy: "admin-1"})
	require.ErrorIs(t, err, ErrRoleNotFound)

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 1, AssignedBy: "admin-1", StartDate: start, EndDate: &end})
	require.ErrorIs(t, err, ErrInvalidDateRange)

	// A failed assign must not have touched state.
	_, err = svc.GetActiveAssignment(ctx, "u-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	svc, repo, rec := newTestService(t)
	repo.addRole(1, "Server", true)
	ctx := context.Background()

	_, err := svc.Assign(ctx, AssignRequest{UserID: "u-1", RoleID: 1, AssignedBy: "admin-1"})
	require.NoError(t, err)

	closed, err := svc.Revoke(ctx, "u-1", "admin-2", "left company")
	require.NoError(t, err)
	require.Equal(t, "Server", closed.RoleName)

	_, err = svc.GetActiveAssignment(ctx, "u-1")
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Len(t, rec.entries, 2)
	require.Equal(t, "Server", rec.entries[1].OldRoleName)
	require.Equal(t, audit.RoleNone, rec.entries[1].NewRoleName)

	_, err = svc.Revoke(ctx, "u-1", "admin-2", "again")
	require.ErrorIs(t, err, ErrNoActiveAssignment)
}

func TestGetHistoryEmptyUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	history, err := svc.GetHistory(context.Background(), "nobody", HistoryFilters{})
	require.NoError(t, err)
	require.NotNil(t, history)
	require.Empty(t, history)
}

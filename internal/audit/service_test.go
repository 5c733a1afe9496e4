package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	roleChanges []RoleChangeEntry
	permChanges []PermissionChangeEntry
	decisions   []DecisionEntry
	failWrites  bool

	lastLimit  int
	lastOffset int
	lastCutoff time.Time
}

var errWriteFailed = errors.New("write failed")

func (r *memoryRepo) InsertRoleChange(ctx context.Context, q Querier, entry RoleChangeEntry) error {
	if r.failWrites {
		return errWriteFailed
	}
	r.roleChanges = append(r.roleChanges, entry)
	return nil
}

func (r *memoryRepo) InsertPermissionChange(ctx context.Context, q Querier, entry PermissionChangeEntry) error {
	if r.failWrites {
		return errWriteFailed
	}
	r.permChanges = append(r.permChanges, entry)
	return nil
}

func (r *memoryRepo) InsertDecision(ctx context.Context, entry DecisionEntry) error {
	if r.failWrites {
		return errWriteFailed
	}
	r.decisions = append(r.decisions, entry)
	return nil
}

func (r *memoryRepo) RoleChangeHistory(ctx context.Context, userID string, limit, offset int) ([]RoleChangeEntry, error) {
	r.lastLimit, r.lastOffset = limit, offset
	var out []RoleChangeEntry
	for i := len(r.roleChanges) - 1; i >= 0; i-- {
		if r.roleChanges[i].UserID == userID {
			out = append(out, r.roleChanges[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) PermissionHistory(ctx context.Context, roleID int64, limit, offset int) ([]PermissionChangeEntry, error) {
	r.lastLimit, r.lastOffset = limit, offset
	var out []PermissionChangeEntry
	for i := len(r.permChanges) - 1; i >= 0; i-- {
		if r.permChanges[i].RoleID == roleID {
			out = append(out, r.permChanges[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) PruneDecisions(ctx context.Context, cutoff time.Time) (int64, error) {
	r.lastCutoff = cutoff
	return 42, nil
}

func TestRecordRoleChangeNormalizesEntry(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)

	err := svc.RecordRoleChange(context.Background(), RoleChangeEntry{
		UserID:      "u-1",
		NewRoleName: "Server",
		ChangedBy:   "admin-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.roleChanges, 1)
	require.Equal(t, RoleNone, repo.roleChanges[0].OldRoleName)
	require.Equal(t, "Server", repo.roleChanges[0].NewRoleName)
	require.False(t, repo.roleChanges[0].ChangedAt.IsZero())
}

func TestRecordRoleChangeReportsFailureWithoutPanicking(t *testing.T) {
	repo := &memoryRepo{failWrites: true}
	svc := NewService(repo, nil)

	err := svc.RecordRoleChange(context.Background(), RoleChangeEntry{UserID: "u-1", NewRoleName: "Server"})
	require.ErrorIs(t, err, errWriteFailed)
	require.Empty(t, repo.roleChanges)
}

func TestRoleChangeHistoryNewestFirst(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, name := range []string{"Server", "Cook", "Manager"} {
		require.NoError(t, svc.RecordRoleChange(ctx, RoleChangeEntry{UserID: "u-1", NewRoleName: name}))
	}
	require.NoError(t, svc.RecordRoleChange(ctx, RoleChangeEntry{UserID: "u-2", NewRoleName: "Host"}))

	entries, err := svc.RoleChangeHistory(ctx, "u-1", HistoryFilters{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "Manager", entries[0].NewRoleName)
	require.Equal(t, "Server", entries[2].NewRoleName)
}

func TestHistoryPagingClamps(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.RoleChangeHistory(ctx, "u-1", HistoryFilters{})
	require.NoError(t, err)
	require.Equal(t, 20, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)

	_, err = svc.RoleChangeHistory(ctx, "u-1", HistoryFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 100, repo.lastLimit)
	require.Equal(t, 200, repo.lastOffset)
}

func TestPruneDecisionsUsesRetentionWindow(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil)

	deleted, err := svc.PruneDecisions(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(42), deleted)
	require.WithinDuration(t, time.Now().Add(-24*time.Hour), repo.lastCutoff, time.Minute)
}

package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/roles"
)

type stubResolver struct {
	byUser map[string]*roles.Role
	loads  int
}

func (r *stubResolver) GetActiveRole(ctx context.Context, userID string) (*roles.Role, error) {
	r.loads++
	role, ok := r.byUser[userID]
	if !ok {
		return nil, nil
	}
	clone := *role
	return &clone, nil
}

type recordedDecisions struct {
	entries []audit.DecisionEntry
}

func (d *recordedDecisions) RecordDecision(ctx context.Context, entry audit.DecisionEntry) error {
	d.entries = append(d.entries, entry)
	return nil
}

func serverRole() *roles.Role {
	return &roles.Role{
		ID:             1,
		Name:           "Server",
		Permissions:    []catalog.ID{catalog.PermViewOrders, catalog.PermViewMenu},
		HierarchyLevel: 20,
		IsActive:       true,
	}
}

func TestCheckPermission(t *testing.T) {
	resolver := &stubResolver{byUser: map[string]*roles.Role{"u-1": serverRole()}}
	svc := NewService(resolver, nil, nil, DecisionModeOff, nil)
	ctx := context.Background()

	allowed, err := svc.CheckPermission(ctx, "u-1", catalog.PermViewOrders, "")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = svc.CheckPermission(ctx, "u-1", catalog.PermManageBilling, "")
	require.NoError(t, err)
	require.False(t, allowed)

	// Unknown users and blank inputs deny without error.
	allowed, err = svc.CheckPermission(ctx, "ghost", catalog.PermViewOrders, "")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = svc.CheckPermission(ctx, "", catalog.PermViewOrders, "")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = svc.CheckPermission(ctx, "u-1", "", "")
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestWildcardGrantsEverything(t *testing.T) {
	owner := &roles.Role{ID: 2, Name: "Owner", Permissions: []catalog.ID{catalog.Wildcard}, HierarchyLevel: 100, IsActive: true}
	resolver := &stubResolver{byUser: map[string]*roles.Role{"u-2": owner}}
	svc := NewService(resolver, nil, nil, DecisionModeOff, nil)
	ctx := context.Background()

	for _, perm := range []catalog.ID{catalog.PermViewOrders, catalog.PermManageRoles, "anything_at_all"} {
		allowed, err := svc.CheckPermission(ctx, "u-2", perm, "")
		require.NoError(t, err)
		require.True(t, allowed, "permission %s", perm)
	}
}

func TestGetUserPermissionsEmptyForUnassignedUser(t *testing.T) {
	resolver := &stubResolver{byUser: map[string]*roles.Role{}}
	svc := NewService(resolver, nil, nil, DecisionModeOff, nil)

	perms, err := svc.GetUserPermissions(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, perms)
	require.Empty(t, perms)
}

func TestInactiveRoleGrantsNothing(t *testing.T) {
	role := serverRole()
	role.IsActive = false
	resolver := &stubResolver{byUser: map[string]*roles.Role{"u-1": role}}
	svc := NewService(resolver, nil, nil, DecisionModeOff, nil)

	perms, err := svc.GetUserPermissions(context.Background(), "u-1")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestPermissionCacheAndInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	resolver := &stubResolver{byUser: map[string]*roles.Role{"u-1": serverRole()}}
	cache := NewCache(client, time.Minute)
	svc := NewService(resolver, cache, nil, DecisionModeOff, nil)
	ctx := context.Background()

	perms, err := svc.GetUserPermissions(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, perms, 2)
	require.Equal(t, 1, resolver.loads)

	// Second lookup is served from the cache.
	_, err = svc.GetUserPermissions(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 1, resolver.loads)

	// A stale snapshot keeps serving until the version is bumped.
	resolver.byUser["u-1"].Permissions = []catalog.ID{catalog.PermViewMenu}
	_, err = svc.GetUserPermissions(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 1, resolver.loads)

	require.NoError(t, cache.Bump(ctx))
	perms, err = svc.GetUserPermissions(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Equal(t, 2, resolver.loads)
}

func TestDecisionLogModes(t *testing.T) {
	resolver := &stubResolver{byUser: map[string]*roles.Role{"u-1": serverRole()}}
	ctx := context.Background()

	rec := &recordedDecisions{}
	svc := NewService(resolver, nil, rec, DecisionModeOff, nil)
	_, _ = svc.CheckPermission(ctx, "u-1", catalog.PermViewOrders, "")
	_, _ = svc.CheckPermission(ctx, "u-1", catalog.PermManageBilling, "")
	require.Empty(t, rec.entries)

	rec = &recordedDecisions{}
	svc = NewService(resolver, nil, rec, DecisionModeDenied, nil)
	_, _ = svc.CheckPermission(ctx, "u-1", catalog.PermViewOrders, "")
	_, _ = svc.CheckPermission(ctx, "u-1", catalog.PermManageBilling, "")
	require.Len(t, rec.entries, 1)
	require.Equal(t, audit.DecisionDenied, rec.entries[0].Outcome)
	require.Equal(t, string(catalog.PermManageBilling), rec.entries[0].PermissionID)

	rec = &recordedDecisions{}
	svc = NewService(resolver, nil, rec, DecisionModeAll, nil)
	_, _ = svc.CheckPermission(ctx, "u-1", catalog.PermViewOrders, "")
	_, _ = svc.CheckPermission(ctx, "u-1", catalog.PermManageBilling, "")
	require.Len(t, rec.entries, 2)
	require.Equal(t, audit.DecisionGranted, rec.entries[0].Outcome)
	require.Equal(t, audit.DecisionDenied, rec.entries[1].Outcome)
}

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/roles"
	"github.com/mealflow/mealflow/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, guard func(http.Handler) http.Handler, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != "" {
		ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: userID})
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	guard(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestRequireAny(t *testing.T) {
	resolver := &stubResolver{byUser: map[string]*roles.Role{
		"server": serverRole(),
		"owner":  {ID: 2, Name: "Owner", Permissions: []catalog.ID{catalog.Wildcard}, IsActive: true},
	}}
	mw := Middleware{Service: NewService(resolver, nil, nil, DecisionModeOff, nil)}

	guard := mw.RequireAny(catalog.PermViewOrders, catalog.PermManageOrders)

	require.Equal(t, http.StatusUnauthorized, doRequest(t, guard, "").Code)
	require.Equal(t, http.StatusOK, doRequest(t, guard, "server").Code)
	require.Equal(t, http.StatusOK, doRequest(t, guard, "owner").Code)
	require.Equal(t, http.StatusForbidden, doRequest(t, guard, "ghost").Code)

	billing := mw.RequireAny(catalog.PermManageBilling)
	require.Equal(t, http.StatusForbidden, doRequest(t, billing, "server").Code)
}

func TestRequireAll(t *testing.T) {
	resolver := &stubResolver{byUser: map[string]*roles.Role{
		"server": serverRole(),
		"owner":  {ID: 2, Name: "Owner", Permissions: []catalog.ID{catalog.Wildcard}, IsActive: true},
	}}
	mw := Middleware{Service: NewService(resolver, nil, nil, DecisionModeOff, nil)}

	both := mw.RequireAll(catalog.PermViewOrders, catalog.PermViewMenu)
	require.Equal(t, http.StatusOK, doRequest(t, both, "server").Code)
	require.Equal(t, http.StatusOK, doRequest(t, both, "owner").Code)

	withBilling := mw.RequireAll(catalog.PermViewOrders, catalog.PermManageBilling)
	require.Equal(t, http.StatusForbidden, doRequest(t, withBilling, "server").Code)
	require.Equal(t, http.StatusOK, doRequest(t, withBilling, "owner").Code)
}

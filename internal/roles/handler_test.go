package roles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/platform/httpx"
	"github.com/mealflow/mealflow/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, catalog.MustDefaults(), nil, nil, nil)
	h := NewHandler(shared.TestLogger(), svc, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: "admin-1"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r, repo
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateRole(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/roles", `{"name":"Shift Manager","permissions":["view_orders","manage_orders"],"hierarchy_level":40}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	require.Equal(t, "Shift Manager", role.Name)
	require.Equal(t, "admin-1", role.CreatedBy)
}

func TestHandleCreateRoleUnknownPermissions(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/roles", `{"name":"Bad","permissions":["fake_a","view_menu","fake_b"],"hierarchy_level":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	// Every unknown id is reported, not just the first.
	require.Contains(t, problem.Detail, "fake_a")
	require.Contains(t, problem.Detail, "fake_b")
}

func TestHandleCreateRoleDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/roles", `{"name":"Manager","permissions":["view_menu"],"hierarchy_level":50}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/roles", `{"name":"manager","permissions":["view_menu"],"hierarchy_level":50}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleDeactivateRoleInUse(t *testing.T) {
	router, repo := newTestRouter(t)

	rec := postJSON(t, router, "/roles", `{"name":"Server","permissions":["view_orders"],"hierarchy_level":15}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))

	repo.activeAssignments[role.ID] = 2

	req := httptest.NewRequest(http.MethodDelete, "/roles/1", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusConflict, res.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &problem))
	require.Contains(t, problem.Detail, "2 active assignment")
}

func TestHandleGetRoleNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/roles/999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

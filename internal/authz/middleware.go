package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/platform/httpx"
	"github.com/mealflow/mealflow/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user holds at least one of the
// required permissions. A request with no principal is denied.
func (m Middleware) RequireAny(perms ...catalog.ID) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.grantedPermissions(w, r)
			if !ok {
				return
			}
			if hasAnyPermission(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// RequireAll ensures the current user holds every required permission.
func (m Middleware) RequireAll(perms ...catalog.ID) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.grantedPermissions(w, r)
			if !ok {
				return
			}
			if hasAllPermissions(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// grantedPermissions resolves the caller's permission set, writing the
// response itself when the request must be denied outright.
func (m Middleware) grantedPermissions(w http.ResponseWriter, r *http.Request) ([]catalog.ID, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok || strings.TrimSpace(principal.UserID) == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	granted, err := m.Service.GetUserPermissions(r.Context(), principal.UserID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve permissions", slog.String("user_id", principal.UserID), slog.Any("error", err))
		}
		// Lookup failures deny; they never grant.
		httpx.RespondError(w, httpx.ErrForbidden)
		return nil, false
	}
	return granted, true
}

func normalizePermissions(perms []catalog.ID) []catalog.ID {
	unique := make(map[catalog.ID]struct{}, len(perms))
	for _, p := range perms {
		p = catalog.ID(strings.TrimSpace(string(p)))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]catalog.ID, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted, required []catalog.ID) bool {
	set := permissionSet(granted)
	if _, ok := set[catalog.Wildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted, required []catalog.ID) bool {
	set := permissionSet(granted)
	if _, ok := set[catalog.Wildcard]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func permissionSet(granted []catalog.ID) map[catalog.ID]struct{} {
	set := make(map[catalog.ID]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	return set
}

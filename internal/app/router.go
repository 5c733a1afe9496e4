package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mealflow/mealflow/internal/assignments"
	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/authz"
	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	CatalogHandler     *catalog.Handler
	RolesHandler       *roles.Handler
	AssignmentsHandler *assignments.Handler
	AuthzHandler       *authz.Handler
	AuditHandler       *audit.Handler
}

// NewRouter constructs the chi.Router with Mealflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.RolesHandler != nil {
			params.RolesHandler.MountRoutes(r)
		}
		if params.AssignmentsHandler != nil {
			params.AssignmentsHandler.MountRoutes(r)
		}
		if params.AuthzHandler != nil {
			params.AuthzHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
	})

	return r
}

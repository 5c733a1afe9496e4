package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealflow/mealflow/internal/platform/httpx"
)

// Handler exposes the permission catalog over HTTP. The catalog is
// fixed at startup so the endpoint is read-only.
type Handler struct {
	logger  *slog.Logger
	catalog *Catalog
	guard   func(http.Handler) http.Handler
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, cat *Catalog, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, catalog: cat, guard: guard}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Get("/permissions", h.handleList)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permissions": h.catalog.GetAll(),
	})
}

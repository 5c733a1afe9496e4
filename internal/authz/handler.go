package authz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/platform/httpx"
)

// Handler exposes permission resolution endpoints for other services.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   func(http.Handler) http.Handler
}

// NewHandler constructs authz handler.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers permission lookup routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Get("/users/{userID}/permissions", h.handlePermissions)
		r.Get("/users/{userID}/permissions/check", h.handleCheck)
	})
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	perms, err := h.service.GetUserPermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get user permissions", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": perms,
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	perm := r.URL.Query().Get("permission")
	if perm == "" {
		httpx.RespondError(w, fmt.Errorf("%w: permission query parameter required", httpx.ErrValidation))
		return
	}
	allowed, err := h.service.CheckPermission(r.Context(), userID, catalog.ID(perm), r.URL.Query().Get("resource"))
	if err != nil {
		h.logger.Error("check permission", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":    userID,
		"permission": perm,
		"allowed":    allowed,
	})
}

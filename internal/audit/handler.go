package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mealflow/mealflow/internal/platform/httpx"
)

// Handler exposes read access to the audit trail.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   func(http.Handler) http.Handler
}

// NewHandler constructs audit handler.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Get("/audit/users/{userID}/role-changes", h.handleRoleChanges)
		r.Get("/audit/roles/{roleID}/permission-changes", h.handlePermissionChanges)
	})
}

func (h *Handler) handleRoleChanges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	entries, err := h.service.RoleChangeHistory(r.Context(), userID, pageFilters(r))
	if err != nil {
		h.logger.Error("role change history", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []RoleChangeEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handlePermissionChanges(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "roleID")
	roleID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || roleID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid role id %q", httpx.ErrValidation, raw))
		return
	}
	entries, err := h.service.PermissionHistory(r.Context(), roleID, pageFilters(r))
	if err != nil {
		h.logger.Error("permission history", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []PermissionChangeEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func pageFilters(r *http.Request) HistoryFilters {
	q := r.URL.Query()
	filters := HistoryFilters{Page: 1, PageSize: 20}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
		filters.PageSize = v
	}
	return filters
}

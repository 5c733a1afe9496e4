package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mealflow/mealflow/internal/platform/httpx"
	"github.com/mealflow/mealflow/internal/shared"
)

// Handler wires HTTP endpoints for role management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    func(http.Handler) http.Handler
}

// NewHandler constructs roles handler. guard protects every route and
// is normally authz.Middleware.RequireAny(catalog.PermManageRoles).
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		guard:    guard,
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Post("/roles", h.handleCreate)
		r.Get("/roles", h.handleList)
		r.Get("/roles/{roleID}", h.handleGet)
		r.Patch("/roles/{roleID}", h.handleUpdate)
		r.Delete("/roles/{roleID}", h.handleDeactivate)
		r.Get("/roles/{actingID}/can-act-on/{targetID}", h.handleCanActOn)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	role, err := h.service.Create(r.Context(), req, principal.UserID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Page:    parseIntParam(q.Get("page"), 1),
		PerPage: parseIntParam(q.Get("per_page"), 20),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
	items, total, err := h.service.ListActive(r.Context(), filters)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	if items == nil {
		items = []Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"roles":      items,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r, "roleID")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	role, err := h.service.Update(r.Context(), id, req, principal.UserID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r, "roleID")
	if !ok {
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	if err := h.service.Deactivate(r.Context(), id, principal.UserID); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCanActOn(w http.ResponseWriter, r *http.Request) {
	actingID, ok := h.roleID(w, r, "actingID")
	if !ok {
		return
	}
	targetID, ok := h.roleID(w, r, "targetID")
	if !ok {
		return
	}
	allowed, err := h.service.CanActOn(r.Context(), actingID, targetID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid role id %q", httpx.ErrValidation, raw))
		return 0, false
	}
	return id, true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var invalidPerms *InvalidPermissionsError
	var inUse *InUseError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: role not found", httpx.ErrNotFound))
	case errors.Is(err, ErrDuplicateName):
		httpx.RespondError(w, fmt.Errorf("%w: an active role with this name already exists", httpx.ErrDuplicate))
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrEmptyPermissions), errors.Is(err, ErrInvalidHierarchy):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.As(err, &invalidPerms):
		ids := make([]string, len(invalidPerms.Unknown))
		for i, p := range invalidPerms.Unknown {
			ids[i] = string(p)
		}
		httpx.RespondError(w, fmt.Errorf("%w: unknown permissions: %s", httpx.ErrValidation, strings.Join(ids, ", ")))
	case errors.As(err, &inUse):
		httpx.RespondError(w, fmt.Errorf("%w: role has %d active assignment(s)", httpx.ErrConflict, inUse.ActiveAssignments))
	default:
		h.logger.Error("roles handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

package assignments

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mealflow/mealflow/internal/platform/httpx"
	"github.com/mealflow/mealflow/internal/shared"
)

// Handler wires HTTP endpoints for assignment management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    func(http.Handler) http.Handler
}

// NewHandler constructs assignments handler.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		guard:    guard,
	}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Post("/assignments", h.handleAssign)
		r.Get("/users/{userID}/assignment", h.handleGetActive)
		r.Delete("/users/{userID}/assignment", h.handleRevoke)
		r.Get("/users/{userID}/assignments", h.handleHistory)
	})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	req.AssignedBy = principal.UserID

	assignment, err := h.service.Assign(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) handleGetActive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	assignment, err := h.service.GetActiveAssignment(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignment)
}

type revokeRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())

	closed, err := h.service.Revoke(r.Context(), userID, principal.UserID, req.Reason)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, closed)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()
	filters := HistoryFilters{
		Page:    parseIntParam(q.Get("page"), 1),
		PerPage: parseIntParam(q.Get("per_page"), 20),
	}
	items, err := h.service.GetHistory(r.Context(), userID, filters)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"assignments": items,
		"pagination":  shared.NewPagination(filters.Page, filters.PerPage, len(items)),
	})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: role not found or deactivated", httpx.ErrValidation))
	case errors.Is(err, ErrInvalidDateRange), errors.Is(err, ErrAssignerRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.Is(err, ErrNoActiveAssignment):
		httpx.RespondError(w, fmt.Errorf("%w: user has no active assignment", httpx.ErrNotFound))
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: no active assignment", httpx.ErrNotFound))
	default:
		h.logger.Error("assignments handler", slog.Any("error", err))
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

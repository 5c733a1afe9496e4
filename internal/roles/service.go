package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/shared"
)

// AuditRecorder receives permission change entries. The role store is
// the sole writer of the permission log.
type AuditRecorder interface {
	RecordPermissionChange(ctx context.Context, entry audit.PermissionChangeEntry) error
}

// CacheInvalidator drops cached effective permission sets after role
// mutations.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service handles role business logic.
type Service struct {
	repo    RepositoryPort
	catalog *catalog.Catalog
	audit   AuditRecorder
	cache   CacheInvalidator
	logger  *slog.Logger
}

// NewService builds Service instance. audit and cache may be nil in
// tests that do not exercise those paths.
func NewService(repo RepositoryPort, cat *catalog.Catalog, recorder AuditRecorder, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, audit: recorder, cache: cache, logger: logger}
}

// Create validates and inserts a new role. One permission log entry is
// recorded per initial permission.
func (s *Service) Create(ctx context.Context, req CreateRoleRequest, createdBy string) (*Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	perms, err := s.validatePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	if err := validateHierarchy(req.HierarchyLevel); err != nil {
		return nil, err
	}

	// Friendlier than relying on the unique index alone; the index still
	// backs this check under concurrency.
	existing, err := s.repo.GetActiveByName(ctx, name)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing role: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateName
	}

	created, err := s.repo.Create(ctx, Role{
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		Permissions:    perms,
		HierarchyLevel: req.HierarchyLevel,
		CreatedBy:      createdBy,
	})
	if err != nil {
		return nil, err
	}

	s.logPermissionChanges(ctx, created.ID, perms, nil, createdBy)
	s.bumpCache(ctx)
	return created, nil
}

// GetByID returns a role, active or not.
func (s *Service) GetByID(ctx context.Context, id int64) (*Role, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByName returns an active role by case-insensitive name.
func (s *Service) GetByName(ctx context.Context, name string) (*Role, error) {
	return s.repo.GetActiveByName(ctx, name)
}

// ListActive returns active roles with the total count.
func (s *Service) ListActive(ctx context.Context, filters ListFilters) ([]Role, int, error) {
	return s.repo.ListActive(ctx, filters)
}

// Update applies a partial update. Supplied permission and hierarchy
// fields are re-validated; the permission log records only the
// permissions whose membership actually changed, never the whole new
// list.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRoleRequest, updatedBy string) (*Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldPerms := role.Permissions

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		if FoldName(name) != FoldName(role.Name) {
			existing, err := s.repo.GetActiveByName(ctx, name)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("check existing role: %w", err)
			}
			if existing != nil && existing.ID != id {
				return nil, ErrDuplicateName
			}
		}
		role.Name = name
	}
	if req.Description != nil {
		role.Description = strings.TrimSpace(*req.Description)
	}
	if req.Permissions != nil {
		perms, err := s.validatePermissions(*req.Permissions)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	if req.HierarchyLevel != nil {
		if err := validateHierarchy(*req.HierarchyLevel); err != nil {
			return nil, err
		}
		role.HierarchyLevel = *req.HierarchyLevel
	}

	updated, err := s.repo.Update(ctx, *role)
	if err != nil {
		return nil, err
	}

	if req.Permissions != nil {
		s.logPermissionChanges(ctx, id, updated.Permissions, oldPerms, updatedBy)
	}
	s.bumpCache(ctx)
	return updated, nil
}

// Deactivate soft-deletes a role. Roles still referenced by an active
// assignment are reported via InUseError.
func (s *Service) Deactivate(ctx context.Context, id int64, deletedBy string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("role deactivated", slog.Int64("role_id", id), slog.String("deleted_by", deletedBy))
	s.bumpCache(ctx)
	return nil
}

// CanActOn reports whether the acting role is senior enough to
// administer the target role. A missing or deactivated role on either
// side yields false, not an error; this is a gate, not a lookup.
func (s *Service) CanActOn(ctx context.Context, actingRoleID, targetRoleID int64) (bool, error) {
	acting, err := s.repo.GetByID(ctx, actingRoleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	target, err := s.repo.GetByID(ctx, targetRoleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !acting.IsActive || !target.IsActive {
		return false, nil
	}
	return acting.HierarchyLevel >= target.HierarchyLevel, nil
}

func (s *Service) validatePermissions(raw []string) ([]catalog.ID, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPermissions
	}
	ids := make([]catalog.ID, 0, len(raw))
	seen := make(map[catalog.ID]struct{}, len(raw))
	for _, p := range raw {
		id := catalog.ID(strings.TrimSpace(p))
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if missing := s.catalog.Missing(ids); len(missing) > 0 {
		return nil, &InvalidPermissionsError{Unknown: missing}
	}
	return ids, nil
}

func validateHierarchy(level int) error {
	if level < HierarchyMin || level > HierarchyMax {
		return ErrInvalidHierarchy
	}
	return nil
}

// logPermissionChanges diffs the old and new permission sets and writes
// one entry per real add or remove. Entries from the same mutation share
// a change id. Failures never propagate to the caller.
func (s *Service) logPermissionChanges(ctx context.Context, roleID int64, newPerms, oldPerms []catalog.ID, changedBy string) {
	if s.audit == nil {
		return
	}
	changeID := uuid.NewString()

	oldSet := make(map[catalog.ID]struct{}, len(oldPerms))
	for _, p := range oldPerms {
		oldSet[p] = struct{}{}
	}
	newSet := make(map[catalog.ID]struct{}, len(newPerms))
	for _, p := range newPerms {
		newSet[p] = struct{}{}
	}

	for _, p := range newPerms {
		if _, had := oldSet[p]; !had {
			_ = s.audit.RecordPermissionChange(ctx, audit.PermissionChangeEntry{
				RoleID:       roleID,
				PermissionID: string(p),
				Action:       audit.PermissionActionAdded,
				ChangedBy:    changedBy,
				ChangeID:     changeID,
			})
		}
	}
	for _, p := range oldPerms {
		if _, kept := newSet[p]; !kept {
			_ = s.audit.RecordPermissionChange(ctx, audit.PermissionChangeEntry{
				RoleID:       roleID,
				PermissionID: string(p),
				Action:       audit.PermissionActionRemoved,
				ChangedBy:    changedBy,
				ChangeID:     changeID,
			})
		}
	}
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump permission cache", slog.Any("error", err))
	}
}

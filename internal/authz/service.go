package authz

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/roles"
)

// DecisionMode controls which permission-check outcomes are written to
// the decision log.
type DecisionMode string

const (
	DecisionModeOff    DecisionMode = "off"
	DecisionModeDenied DecisionMode = "denied"
	DecisionModeAll    DecisionMode = "all"
)

// RoleResolver resolves a user's effective role. A user without an
// active assignment resolves to nil, nil.
type RoleResolver interface {
	GetActiveRole(ctx context.Context, userID string) (*roles.Role, error)
}

// DecisionRecorder receives permission-check outcomes.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, entry audit.DecisionEntry) error
}

// Service answers permission checks. Every path that cannot positively
// establish a grant denies: unknown users, missing assignments,
// deactivated roles and lookup failures all resolve to no access.
type Service struct {
	resolver  RoleResolver
	cache     *Cache
	decisions DecisionRecorder
	mode      DecisionMode
	group     singleflight.Group
	logger    *slog.Logger
}

// NewService builds Service instance. cache and decisions may be nil.
func NewService(resolver RoleResolver, cache *Cache, decisions DecisionRecorder, mode DecisionMode, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = DecisionModeOff
	}
	return &Service{resolver: resolver, cache: cache, decisions: decisions, mode: mode, logger: logger}
}

// CheckPermission reports whether the user currently holds the
// permission. The wildcard permission grants everything. resource is
// an optional label carried into the decision log.
func (s *Service) CheckPermission(ctx context.Context, userID string, perm catalog.ID, resource string) (bool, error) {
	if userID == "" || perm == "" {
		s.recordDecision(ctx, userID, perm, resource, false)
		return false, nil
	}
	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		s.recordDecision(ctx, userID, perm, resource, false)
		return false, err
	}
	allowed := false
	for _, p := range perms {
		if p == perm || p == catalog.Wildcard {
			allowed = true
			break
		}
	}
	s.recordDecision(ctx, userID, perm, resource, allowed)
	return allowed, nil
}

// GetUserPermissions returns the user's effective permission set. A
// user without an active assignment gets an empty set, not an error.
// Results are cached per user under the current cache version;
// concurrent misses for the same user share one database load.
func (s *Service) GetUserPermissions(ctx context.Context, userID string) ([]catalog.ID, error) {
	key, err := s.buildKey(ctx, userID)
	if err != nil {
		// Cache trouble must not take authorization down with it.
		s.logger.Warn("authz cache key", slog.Any("error", err))
		return s.loadPermissions(ctx, userID)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var perms []catalog.ID
		err := s.cache.FetchJSON(ctx, key, &perms, func(ctx context.Context) (interface{}, error) {
			return s.loadPermissions(ctx, userID)
		})
		return perms, err
	})
	if err != nil {
		return nil, err
	}
	perms := v.([]catalog.ID)
	if perms == nil {
		perms = []catalog.ID{}
	}
	return perms, nil
}

func (s *Service) buildKey(ctx context.Context, userID string) (string, error) {
	if s.cache == nil {
		return "authz:perms:" + userID, nil
	}
	return s.cache.BuildKey(ctx, userID)
}

func (s *Service) loadPermissions(ctx context.Context, userID string) ([]catalog.ID, error) {
	role, err := s.resolver.GetActiveRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role == nil || !role.IsActive {
		return []catalog.ID{}, nil
	}
	return role.Permissions, nil
}

func (s *Service) recordDecision(ctx context.Context, userID string, perm catalog.ID, resource string, allowed bool) {
	if s.decisions == nil || s.mode == DecisionModeOff {
		return
	}
	if s.mode == DecisionModeDenied && allowed {
		return
	}
	outcome := audit.DecisionDenied
	if allowed {
		outcome = audit.DecisionGranted
	}
	_ = s.decisions.RecordDecision(ctx, audit.DecisionEntry{
		UserID:       userID,
		PermissionID: string(perm),
		Resource:     resource,
		Outcome:      outcome,
		CheckedAt:    time.Now(),
	})
}

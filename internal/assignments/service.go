package assignments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/roles"
	"github.com/mealflow/mealflow/internal/shared"
)

// AuditRecorder appends role transition entries. The in-transaction
// variant keeps history order aligned with commit order per user.
type AuditRecorder interface {
	RecordRoleChangeIn(ctx context.Context, tx pgx.Tx, entry audit.RoleChangeEntry) error
}

// CacheInvalidator drops cached permission snapshots after a mutation.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates assignment business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditRec AuditRecorder, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: auditRec, cache: cache, logger: logger}
}

// Assign gives the user the role, atomically replacing any active
// assignment. The replaced assignment is closed, not deleted, and the
// transition is recorded in the role change log within the same
// transaction.
func (s *Service) Assign(ctx context.Context, req AssignRequest) (*RoleAssignment, error) {
	if strings.TrimSpace(req.AssignedBy) == "" {
		return nil, ErrAssignerRequired
	}
	now := time.Now()
	if req.StartDate.IsZero() {
		req.StartDate = now
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return nil, ErrInvalidDateRange
	}

	var created *RoleAssignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockUser(ctx, req.UserID); err != nil {
			return err
		}
		role, err := tx.GetActiveRoleForShare(ctx, req.RoleID)
		if err != nil {
			return err
		}
		closed, err := tx.CloseActive(ctx, req.UserID, now)
		if err != nil {
			return err
		}

		created, err = tx.Insert(ctx, RoleAssignment{
			UserID:     req.UserID,
			RoleID:     role.ID,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
			AssignedBy: req.AssignedBy,
			Reason:     req.Reason,
		})
		if err != nil {
			return err
		}
		created.RoleName = role.Name

		oldName := audit.RoleNone
		if closed != nil {
			oldName = closed.RoleName
		}
		_ = s.audit.RecordRoleChangeIn(ctx, tx.Tx(), audit.RoleChangeEntry{
			UserID:      req.UserID,
			OldRoleName: oldName,
			NewRoleName: role.Name,
			ChangedBy:   req.AssignedBy,
			Reason:      req.Reason,
			ChangedAt:   now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCache(ctx)
	return created, nil
}

// Revoke ends the user's active assignment without a replacement.
func (s *Service) Revoke(ctx context.Context, userID, revokedBy, reason string) (*RoleAssignment, error) {
	if strings.TrimSpace(revokedBy) == "" {
		return nil, ErrAssignerRequired
	}
	now := time.Now()

	var closed *RoleAssignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		closed, err = tx.CloseActive(ctx, userID, now)
		if err != nil {
			return err
		}
		if closed == nil {
			return ErrNoActiveAssignment
		}

		_ = s.audit.RecordRoleChangeIn(ctx, tx.Tx(), audit.RoleChangeEntry{
			UserID:      userID,
			OldRoleName: closed.RoleName,
			NewRoleName: audit.RoleNone,
			ChangedBy:   revokedBy,
			Reason:      reason,
			ChangedAt:   now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCache(ctx)
	return closed, nil
}

// GetActiveAssignment returns the user's active assignment.
func (s *Service) GetActiveAssignment(ctx context.Context, userID string) (*RoleAssignment, error) {
	a, err := s.repo.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

// GetHistory returns the user's assignments, newest first. A user with
// no history gets an empty page, not an error.
func (s *Service) GetHistory(ctx context.Context, userID string, filters HistoryFilters) ([]RoleAssignment, error) {
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	items, err := s.repo.History(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []RoleAssignment{}
	}
	return items, nil
}

// GetActiveRole resolves the user's effective role, or nil when the
// user has no active assignment.
func (s *Service) GetActiveRole(ctx context.Context, userID string) (*roles.Role, error) {
	return s.repo.GetActiveRole(ctx, userID)
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump authz cache", slog.Any("error", err))
	}
}

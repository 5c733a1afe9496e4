package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Service coordinates the append-only audit trail. Writes are
// best-effort: a failed audit write is reported to the log and must
// never fail the operation that produced it.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordRoleChange appends a role transition entry. The returned error
// is informational; callers ignore it by contract.
func (s *Service) RecordRoleChange(ctx context.Context, entry RoleChangeEntry) error {
	normalizeRoleChange(&entry)
	if err := s.repo.InsertRoleChange(ctx, nil, entry); err != nil {
		s.logger.Error("record role change", slog.String("user_id", entry.UserID), slog.Any("error", err))
		return err
	}
	return nil
}

// RecordRoleChangeIn appends a role transition entry inside the
// caller's transaction so history order matches commit order for the
// user. The write runs under a savepoint: a failure is rolled back and
// swallowed without poisoning the surrounding transaction.
func (s *Service) RecordRoleChangeIn(ctx context.Context, tx pgx.Tx, entry RoleChangeEntry) error {
	normalizeRoleChange(&entry)
	inner, err := tx.Begin(ctx)
	if err != nil {
		s.logger.Error("audit savepoint", slog.Any("error", err))
		return err
	}
	if err := s.repo.InsertRoleChange(ctx, inner, entry); err != nil {
		_ = inner.Rollback(ctx)
		s.logger.Error("record role change", slog.String("user_id", entry.UserID), slog.Any("error", err))
		return err
	}
	if err := inner.Commit(ctx); err != nil {
		s.logger.Error("commit audit savepoint", slog.Any("error", err))
		return err
	}
	return nil
}

// RecordPermissionChange appends a permission change entry.
func (s *Service) RecordPermissionChange(ctx context.Context, entry PermissionChangeEntry) error {
	if err := s.repo.InsertPermissionChange(ctx, nil, entry); err != nil {
		s.logger.Error("record permission change",
			slog.Int64("role_id", entry.RoleID),
			slog.String("permission", entry.PermissionID),
			slog.Any("error", err))
		return err
	}
	return nil
}

// RecordDecision appends a permission-check outcome.
func (s *Service) RecordDecision(ctx context.Context, entry DecisionEntry) error {
	if err := s.repo.InsertDecision(ctx, entry); err != nil {
		s.logger.Error("record decision", slog.String("user_id", entry.UserID), slog.Any("error", err))
		return err
	}
	return nil
}

// RoleChangeHistory returns a user's transitions, newest first.
func (s *Service) RoleChangeHistory(ctx context.Context, userID string, filters HistoryFilters) ([]RoleChangeEntry, error) {
	limit, offset := clampPage(filters)
	return s.repo.RoleChangeHistory(ctx, userID, limit, offset)
}

// PermissionHistory returns a role's permission changes, newest first.
func (s *Service) PermissionHistory(ctx context.Context, roleID int64, filters HistoryFilters) ([]PermissionChangeEntry, error) {
	limit, offset := clampPage(filters)
	return s.repo.PermissionHistory(ctx, roleID, limit, offset)
}

// PruneDecisions removes decision rows older than the retention window.
func (s *Service) PruneDecisions(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PruneDecisions(ctx, time.Now().Add(-retention))
}

func normalizeRoleChange(entry *RoleChangeEntry) {
	if entry.OldRoleName == "" {
		entry.OldRoleName = RoleNone
	}
	if entry.NewRoleName == "" {
		entry.NewRoleName = RoleNone
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now()
	}
}

func clampPage(filters HistoryFilters) (limit, offset int) {
	size := filters.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	return size, (page - 1) * size
}

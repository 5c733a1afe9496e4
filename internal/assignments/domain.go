package assignments

import (
	"errors"
	"time"
)

// RoleAssignment binds a user to a role for a time window. Rows are
// never physically deleted; replaced or revoked assignments are closed
// (is_active=false, end_date stamped) and kept as history.
type RoleAssignment struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	RoleName   string     `json:"role_name"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	AssignedBy string     `json:"assigned_by"`
	Reason     string     `json:"reason,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AssignRequest struct {
	UserID     string     `json:"user_id" validate:"required"`
	RoleID     int64      `json:"role_id" validate:"required,gt=0"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	AssignedBy string     `json:"-"`
	Reason     string     `json:"reason,omitempty" validate:"max=500"`
}

// HistoryFilters controls history paging.
type HistoryFilters struct {
	Page    int
	PerPage int
}

var (
	// ErrRoleNotFound indicates the target role is missing or deactivated.
	ErrRoleNotFound = errors.New("assignments: role not found")
	// ErrInvalidDateRange indicates end date not after start date.
	ErrInvalidDateRange = errors.New("assignments: end date must be after start date")
	// ErrAssignerRequired indicates the acting principal was not supplied.
	ErrAssignerRequired = errors.New("assignments: assigner required")
	// ErrNoActiveAssignment indicates a revoke with nothing to revoke.
	ErrNoActiveAssignment = errors.New("assignments: user has no active assignment")
)

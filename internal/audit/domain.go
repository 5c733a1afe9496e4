package audit

import "time"

// RoleNone is the sentinel role name recorded when a user had no active
// role before (or after) a transition.
const RoleNone = "none"

// PermissionAction labels a permission log entry.
type PermissionAction string

const (
	PermissionActionAdded   PermissionAction = "added"
	PermissionActionRemoved PermissionAction = "removed"
)

// RoleChangeEntry records one assignment transition for a user.
// Entries are append-only and never drive authorization decisions.
type RoleChangeEntry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	OldRoleName string    `json:"old_role_name"`
	NewRoleName string    `json:"new_role_name"`
	ChangedBy   string    `json:"changed_by"`
	Reason      string    `json:"reason,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

// PermissionChangeEntry records one permission added to or removed from
// a role. Entries produced by the same role mutation share a change id.
type PermissionChangeEntry struct {
	ID           int64            `json:"id"`
	RoleID       int64            `json:"role_id"`
	PermissionID string           `json:"permission_id"`
	Action       PermissionAction `json:"action"`
	ChangedBy    string           `json:"changed_by"`
	ChangeID     string           `json:"change_id"`
	ChangedAt    time.Time        `json:"changed_at"`
}

// Decision labels the outcome of a permission check.
type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
)

// DecisionEntry records one permission-check outcome. Unlike the role
// and permission logs these rows are prunable operational data.
type DecisionEntry struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	PermissionID string    `json:"permission_id"`
	Resource     string    `json:"resource,omitempty"`
	Outcome      Decision  `json:"outcome"`
	CheckedAt    time.Time `json:"checked_at"`
}

// HistoryFilters controls history paging.
type HistoryFilters struct {
	Page     int
	PageSize int
}

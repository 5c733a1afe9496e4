package roles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/mealflow/mealflow/internal/catalog"
)

// Hierarchy level bounds. Higher means more senior.
const (
	HierarchyMin = 1
	HierarchyMax = 100
)

// Role is a named bundle of permissions plus a seniority level.
type Role struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Permissions    []catalog.ID `json:"permissions"`
	HierarchyLevel int          `json:"hierarchy_level"`
	IsActive       bool         `json:"is_active"`
	CreatedBy      string       `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// HasPermission reports whether the role grants the permission directly
// or through the wildcard.
func (r *Role) HasPermission(id catalog.ID) bool {
	for _, p := range r.Permissions {
		if p == id || p == catalog.Wildcard {
			return true
		}
	}
	return false
}

type CreateRoleRequest struct {
	Name           string   `json:"name" validate:"required,max=100"`
	Description    string   `json:"description" validate:"max=500"`
	Permissions    []string `json:"permissions"`
	HierarchyLevel int      `json:"hierarchy_level"`
}

type UpdateRoleRequest struct {
	Name           *string   `json:"name,omitempty" validate:"omitempty,max=100"`
	Description    *string   `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions    *[]string `json:"permissions,omitempty"`
	HierarchyLevel *int      `json:"hierarchy_level,omitempty"`
}

// ListFilters controls ListActive ordering and paging.
type ListFilters struct {
	Page    int
	PerPage int
	SortBy  string
	SortDir string
}

var (
	// ErrNameRequired indicates a blank role name.
	ErrNameRequired = errors.New("roles: name required")
	// ErrDuplicateName indicates an active role already uses the name.
	ErrDuplicateName = errors.New("roles: name already in use by an active role")
	// ErrEmptyPermissions indicates a role with zero permissions.
	ErrEmptyPermissions = errors.New("roles: at least one permission is required")
	// ErrInvalidHierarchy indicates a hierarchy level outside [1,100].
	ErrInvalidHierarchy = errors.New("roles: hierarchy level must be between 1 and 100")
)

// InvalidPermissionsError reports every permission id missing from the
// catalog, not just the first.
type InvalidPermissionsError struct {
	Unknown []catalog.ID
}

func (e *InvalidPermissionsError) Error() string {
	ids := make([]string, len(e.Unknown))
	for i, id := range e.Unknown {
		ids[i] = string(id)
	}
	return fmt.Sprintf("roles: unknown permissions: %s", strings.Join(ids, ", "))
}

// InUseError blocks deactivation while active assignments reference the
// role. It carries the blocking count for the conflict response.
type InUseError struct {
	ActiveAssignments int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("roles: role has %d active assignment(s)", e.ActiveAssignments)
}

var nameFolder = cases.Fold()

// FoldName canonicalises a role name for case-insensitive comparison.
func FoldName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}

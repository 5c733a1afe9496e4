package catalog

// ID is a permission identifier. Tagging the string keeps raw user input
// from flowing into authorization checks without passing the catalog.
type ID string

// Wildcard grants every permission check unconditionally when present in
// a role's permission set. This all-access escape hatch is intentional:
// it backs the platform owner role and must not be removed.
const Wildcard ID = "all"

// Action verbs used by the default permission set.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionManage = "manage"
)

// Permission describes an atomic capability.
type Permission struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

package catalog

// Default permission identifiers. Handlers and seeds reference these
// constants instead of raw strings.
const (
	PermViewInventory   ID = "view_inventory"
	PermManageInventory ID = "manage_inventory"
	PermViewMenu        ID = "view_menu"
	PermManageMenu      ID = "manage_menu"
	PermViewOrders      ID = "view_orders"
	PermManageOrders    ID = "manage_orders"
	PermViewStaff       ID = "view_staff"
	PermManageStaff     ID = "manage_staff"
	PermViewReports     ID = "view_reports"
	PermViewBilling     ID = "view_billing"
	PermManageBilling   ID = "manage_billing"
	PermManageRoles     ID = "roles.manage"
	PermViewRoles       ID = "roles.view"
	PermManageAssign    ID = "assignments.manage"
	PermViewAudit       ID = "audit.view"
)

// Defaults returns the platform permission set used to seed the catalog
// at startup.
func Defaults() []Permission {
	return []Permission{
		{ID: Wildcard, Name: "All Access", Description: "Grants every permission unconditionally", Resource: "platform", Action: ActionManage},
		{ID: PermViewInventory, Name: "View Inventory", Description: "Read stock levels and ingredients", Resource: "inventory", Action: ActionRead},
		{ID: PermManageInventory, Name: "Manage Inventory", Description: "Adjust stock, receive deliveries", Resource: "inventory", Action: ActionWrite},
		{ID: PermViewMenu, Name: "View Menu", Description: "Read menu items and prices", Resource: "menu", Action: ActionRead},
		{ID: PermManageMenu, Name: "Manage Menu", Description: "Create and edit menu items", Resource: "menu", Action: ActionWrite},
		{ID: PermViewOrders, Name: "View Orders", Description: "Read customer orders", Resource: "orders", Action: ActionRead},
		{ID: PermManageOrders, Name: "Manage Orders", Description: "Create, update and void orders", Resource: "orders", Action: ActionWrite},
		{ID: PermViewStaff, Name: "View Staff", Description: "Read staff profiles and schedules", Resource: "staff", Action: ActionRead},
		{ID: PermManageStaff, Name: "Manage Staff", Description: "Edit staff profiles and schedules", Resource: "staff", Action: ActionWrite},
		{ID: PermViewReports, Name: "View Reports", Description: "Read sales and operations reports", Resource: "reports", Action: ActionRead},
		{ID: PermViewBilling, Name: "View Billing", Description: "Read invoices and payouts", Resource: "billing", Action: ActionRead},
		{ID: PermManageBilling, Name: "Manage Billing", Description: "Issue refunds and adjust invoices", Resource: "billing", Action: ActionWrite},
		{ID: PermViewRoles, Name: "View Roles", Description: "Read role definitions", Resource: "roles", Action: ActionRead},
		{ID: PermManageRoles, Name: "Manage Roles", Description: "Create, edit and deactivate roles", Resource: "roles", Action: ActionManage},
		{ID: PermManageAssign, Name: "Manage Assignments", Description: "Assign and revoke user roles", Resource: "assignments", Action: ActionManage},
		{ID: PermViewAudit, Name: "View Audit Trail", Description: "Read role and permission change history", Resource: "audit", Action: ActionRead},
	}
}

// MustDefaults builds the default catalog or panics. The seed is
// compiled in, so a failure here is a programming error.
func MustDefaults() *Catalog {
	c, err := New(Defaults())
	if err != nil {
		panic(err)
	}
	return c
}

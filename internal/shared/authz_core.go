package shared

// Platform permissions.
const (
	PermJobsView = "jobs.view"
	PermJobsRun  = "jobs.run"

	PermPermissionsView = "permissions.view"

	PermAuditView   = "audit.view"
	PermAuditExport = "audit.export"
)

// CoreScopes lists the platform permissions.
func CoreScopes() []string {
	return []string{
		PermJobsView,
		PermJobsRun,
		PermPermissionsView,
		PermAuditView,
		PermAuditExport,
	}
}

// PermissionGroup names a set of related permissions.
type PermissionGroup struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// AllScopes lists every permission grouped by area.
func AllScopes() []PermissionGroup {
	return []PermissionGroup{
		{Name: "core", Permissions: CoreScopes()},
		{Name: "ledger", Permissions: LedgerScopes()},
		{Name: "credit", Permissions: CreditScopes()},
		{Name: "savings", Permissions: SavingsScopes()},
	}
}

package shared

// Savings permissions declared for RBAC.
const (
	PermSavingsView     = "savings.view"
	PermSavingsOperate  = "savings.operate"
	PermSavingsManage   = "savings.manage"
	PermSavingsSettings = "savings.settings.edit"
)

// SavingsScopes lists all permissions related to savings accounts.
func SavingsScopes() []string {
	return []string{
		PermSavingsView,
		PermSavingsOperate,
		PermSavingsManage,
		PermSavingsSettings,
	}
}

// PermSuperuser grants every capability.
const PermSuperuser = "*"

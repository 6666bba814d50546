package shared

// Ledger permissions declared for RBAC.
const (
	PermLedgerView         = "ledger.view"
	PermLedgerPost         = "ledger.post"
	PermLedgerVoid         = "ledger.void"
	PermLedgerAccountsEdit = "ledger.accounts.edit"
	PermReportsView        = "ledger.reports.view"

	PermContributionsView   = "contributions.view"
	PermContributionsRecord = "contributions.record"
	PermContributionsVoid   = "contributions.void"
)

// LedgerScopes lists all permissions related to bookkeeping.
func LedgerScopes() []string {
	return []string{
		PermLedgerView,
		PermLedgerPost,
		PermLedgerVoid,
		PermLedgerAccountsEdit,
		PermReportsView,
		PermContributionsView,
		PermContributionsRecord,
		PermContributionsVoid,
	}
}

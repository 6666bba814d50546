package shared

// Credit permissions declared for RBAC.
const (
	PermCreditView     = "credit.view"
	PermCreditRequest  = "credit.request"
	PermCreditApprove  = "credit.approve"
	PermCreditDisburse = "credit.disburse"
	PermCreditCollect  = "credit.collect"
	PermCreditMoraRun  = "credit.mora.run"
)

// CreditScopes lists all permissions related to loans.
func CreditScopes() []string {
	return []string{
		PermCreditView,
		PermCreditRequest,
		PermCreditApprove,
		PermCreditDisburse,
		PermCreditCollect,
		PermCreditMoraRun,
	}
}

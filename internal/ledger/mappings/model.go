package mappings

import "time"

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Integration modules and keys resolved when posting system entries.
const (
	ModuleCredit       = "CREDIT"
	ModuleContribution = "CONTRIBUTION"

	KeyPortfolio = "PORTFOLIO"
	KeyCash      = "CASH"
	KeyEquity    = "EQUITY"
)

// Package savings keeps member savings accounts and their movement log. Every
// balance change is written together with the movement that explains it.
package savings

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the savings product.
type Type string

const (
	TypeOnDemand      Type = "ON_DEMAND"
	TypeScheduled     Type = "SCHEDULED"
	TypeTermDeposit   Type = "TERM_DEPOSIT"
	TypeContractual   Type = "CONTRACTUAL"
	TypeContributions Type = "CONTRIBUTIONS"
)

var typeCodes = map[Type]string{
	TypeOnDemand:      "VISTA",
	TypeScheduled:     "PROG",
	TypeTermDeposit:   "CDAT",
	TypeContractual:   "CONT",
	TypeContributions: "APOR",
}

func (t Type) Valid() bool {
	_, ok := typeCodes[t]
	return ok
}

// Code is the short form used in account numbers.
func (t Type) Code() string { return typeCodes[t] }

// State of an account.
type State string

const (
	StateActive    State = "ACTIVE"
	StateInactive  State = "INACTIVE"
	StateBlocked   State = "BLOCKED"
	StateCancelled State = "CANCELLED"
)

// MovementType classifies a balance change.
type MovementType string

const (
	MovementOpening       MovementType = "OPENING"
	MovementDeposit       MovementType = "DEPOSIT"
	MovementWithdrawal    MovementType = "WITHDRAWAL"
	MovementInterest      MovementType = "INTEREST"
	MovementGMF           MovementType = "GMF"
	MovementManagementFee MovementType = "MANAGEMENT_FEE"
	MovementTransferIn    MovementType = "TRANSFER_IN"
	MovementTransferOut   MovementType = "TRANSFER_OUT"
	MovementCancellation  MovementType = "CANCELLATION"
)

// Credits reports whether the movement adds to the balance.
func (m MovementType) Credits() bool {
	switch m {
	case MovementOpening, MovementDeposit, MovementInterest, MovementTransferIn:
		return true
	}
	return false
}

// Apply returns the balance after a movement of value on balance.
func (m MovementType) Apply(balance, value decimal.Decimal) decimal.Decimal {
	if m.Credits() {
		return balance.Add(value)
	}
	return balance.Sub(value)
}

// Account is a member savings account.
type Account struct {
	ID               int64            `json:"id"`
	Number           string           `json:"number"`
	MemberID         int64            `json:"member_id"`
	Type             Type             `json:"type"`
	State            State            `json:"state"`
	AvailableBalance decimal.Decimal  `json:"available_balance"`
	BlockedBalance   decimal.Decimal  `json:"blocked_balance"`
	AnnualRate       decimal.Decimal  `json:"annual_rate"`
	ManagementFee    decimal.Decimal  `json:"management_fee"`
	GoalAmount       *decimal.Decimal `json:"goal_amount,omitempty"`
	MonthlyQuota     *decimal.Decimal `json:"monthly_quota,omitempty"`
	ScheduledStart   *time.Time       `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time       `json:"scheduled_end,omitempty"`
	TermDays         *int             `json:"term_days,omitempty"`
	OpenedOn         *time.Time       `json:"opened_on,omitempty"`
	MaturityDate     *time.Time       `json:"maturity_date,omitempty"`
	AutoRenew        bool             `json:"auto_renew"`
	Notes            string           `json:"notes,omitempty"`
	OpenedBy         int64            `json:"opened_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
}

// Movement is one immutable line of an account's log.
type Movement struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	AccountID     int64           `json:"account_id"`
	Type          MovementType    `json:"type"`
	Value         decimal.Decimal `json:"value"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	RecordedBy    int64           `json:"recorded_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Consistent reports whether the movement's balances follow its direction.
func (m Movement) Consistent() bool {
	return m.Type.Apply(m.BalanceBefore, m.Value).Equal(m.BalanceAfter)
}

// Stats summarises the savings book.
type Stats struct {
	Total          int                      `json:"total"`
	Active         int                      `json:"active"`
	TotalBalance   decimal.Decimal          `json:"total_balance"`
	AverageBalance decimal.Decimal          `json:"average_balance"`
	BalanceByType  map[Type]decimal.Decimal `json:"balance_by_type"`
	CountByState   map[State]int            `json:"count_by_state"`
}

// BatchResult reports a monthly interest or fee run.
type BatchResult struct {
	AsOf     time.Time       `json:"as_of"`
	Accounts int             `json:"accounts"`
	Skipped  int             `json:"skipped"`
	Total    decimal.Decimal `json:"total"`
}

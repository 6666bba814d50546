// Package credit manages the loan lifecycle: requests, approval, disbursement,
// payment allocation and delinquency (mora) accrual.
package credit

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/credit/amortization"
)

// State of a loan.
type State string

const (
	StateRequested   State = "REQUESTED"
	StateUnderReview State = "UNDER_REVIEW"
	StateApproved    State = "APPROVED"
	StateRejected    State = "REJECTED"
	StateDisbursed   State = "DISBURSED"
	StateActive      State = "ACTIVE"
	StateDelinquent  State = "DELINQUENT"
	StateClosed      State = "CLOSED"
)

// AcceptsPayments reports whether payments may be applied in this state.
func (s State) AcceptsPayments() bool {
	return s == StateActive || s == StateDelinquent || s == StateDisbursed
}

// Reviewable reports whether the loan may still be approved or rejected.
func (s State) Reviewable() bool {
	return s == StateRequested || s == StateUnderReview
}

// Type is the loan product line.
type Type string

const (
	TypeConsumption    Type = "CONSUMO"
	TypeHousing        Type = "VIVIENDA"
	TypeVehicle        Type = "VEHICULO"
	TypeEducation      Type = "EDUCACION"
	TypeMicrobusiness  Type = "MICROEMPRESA"
	TypeCalamity       Type = "CALAMIDAD"
	TypeFreeInvestment Type = "LIBRE_INVERSION"
)

func (t Type) Valid() bool {
	switch t {
	case TypeConsumption, TypeHousing, TypeVehicle, TypeEducation, TypeMicrobusiness, TypeCalamity, TypeFreeInvestment:
		return true
	}
	return false
}

// InstallmentState of a schedule row.
type InstallmentState string

const (
	InstallmentPending    InstallmentState = "PENDING"
	InstallmentPaid       InstallmentState = "PAID"
	InstallmentDelinquent InstallmentState = "DELINQUENT"
	InstallmentRefinanced InstallmentState = "REFINANCED"
)

// Open reports whether the installment still collects payments and accrues mora.
func (s InstallmentState) Open() bool {
	return s == InstallmentPending || s == InstallmentDelinquent
}

// Loan is a credit granted to a member.
type Loan struct {
	ID                   int64                  `json:"id"`
	Number               string                 `json:"number"`
	MemberID             int64                  `json:"member_id"`
	Type                 Type                   `json:"type"`
	RequestedAmount      decimal.Decimal        `json:"requested_amount"`
	ApprovedAmount       decimal.Decimal        `json:"approved_amount"`
	DisbursedAmount      decimal.Decimal        `json:"disbursed_amount"`
	AnnualRate           decimal.Decimal        `json:"annual_rate"`
	TermMonths           int                    `json:"term_months"`
	Frequency            amortization.Frequency `json:"frequency"`
	Method               amortization.Method    `json:"method"`
	State                State                  `json:"state"`
	InstallmentValue     decimal.Decimal        `json:"installment_value"`
	TotalInterest        decimal.Decimal        `json:"total_interest"`
	TotalPayable         decimal.Decimal        `json:"total_payable"`
	OutstandingPrincipal decimal.Decimal        `json:"outstanding_principal"`
	OutstandingInterest  decimal.Decimal        `json:"outstanding_interest"`
	OutstandingPenalty   decimal.Decimal        `json:"outstanding_penalty"`
	DaysLate             int                    `json:"days_late"`
	Purpose              string                 `json:"purpose,omitempty"`
	Notes                string                 `json:"notes,omitempty"`
	RejectionReason      string                 `json:"rejection_reason,omitempty"`
	RequestedBy          int64                  `json:"requested_by"`
	ApprovedBy           *int64                 `json:"approved_by,omitempty"`
	DisbursedBy          *int64                 `json:"disbursed_by,omitempty"`
	DisbursementEntryID  *int64                 `json:"disbursement_entry_id,omitempty"`
	RequestedAt          time.Time              `json:"requested_at"`
	ApprovedAt           *time.Time             `json:"approved_at,omitempty"`
	DisbursedAt          *time.Time             `json:"disbursed_at,omitempty"`
	FirstPaymentDate     *time.Time             `json:"first_payment_date,omitempty"`
	LastPaymentDate      *time.Time             `json:"last_payment_date,omitempty"`
	UpdatedAt            time.Time              `json:"updated_at"`
	Installments         []Installment          `json:"installments,omitempty"`
}

// Installment is one row of a disbursed loan's schedule.
type Installment struct {
	ID             int64            `json:"id"`
	LoanID         int64            `json:"loan_id"`
	Sequence       int              `json:"sequence"`
	DueDate        time.Time        `json:"due_date"`
	Value          decimal.Decimal  `json:"value"`
	Principal      decimal.Decimal  `json:"principal"`
	Interest       decimal.Decimal  `json:"interest"`
	RemainingAfter decimal.Decimal  `json:"remaining_after"`
	Settled        decimal.Decimal  `json:"settled"`
	DaysLate       int              `json:"days_late"`
	Penalty        decimal.Decimal  `json:"penalty"`
	State          InstallmentState `json:"state"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
	PrincipalPaid  decimal.Decimal  `json:"principal_paid"`
	InterestPaid   decimal.Decimal  `json:"interest_paid"`
	PenaltyPaid    decimal.Decimal  `json:"penalty_paid"`
}

// Due is what remains to be paid on the installment. Penalty is attributed
// from payments but does not raise the amount that settles it.
func (i Installment) Due() decimal.Decimal { return i.Value.Sub(i.Settled) }

// Payment is a receipt applied to a loan.
type Payment struct {
	ID               int64                   `json:"id"`
	LoanID           int64                   `json:"loan_id"`
	ReceiptNumber    string                  `json:"receipt_number"`
	PaymentDate      time.Time               `json:"payment_date"`
	TotalValue       decimal.Decimal         `json:"total_value"`
	PrincipalPortion decimal.Decimal         `json:"principal_portion"`
	InterestPortion  decimal.Decimal         `json:"interest_portion"`
	PenaltyPortion   decimal.Decimal         `json:"penalty_portion"`
	OtherPortion     decimal.Decimal         `json:"other_portion"`
	Method           string                  `json:"method"`
	Reference        string                  `json:"reference,omitempty"`
	Notes            string                  `json:"notes,omitempty"`
	IdempotencyKey   string                  `json:"idempotency_key,omitempty"`
	RecordedBy       int64                   `json:"recorded_by"`
	CreatedAt        time.Time               `json:"created_at"`
	Allocations      []InstallmentAllocation `json:"allocations"`
}

// InstallmentAllocation is the share of a payment applied to one installment.
type InstallmentAllocation struct {
	InstallmentID int64           `json:"installment_id"`
	Sequence      int             `json:"sequence"`
	Amount        decimal.Decimal `json:"amount"`
	Principal     decimal.Decimal `json:"principal"`
	Interest      decimal.Decimal `json:"interest"`
	Penalty       decimal.Decimal `json:"penalty"`
}

// DisbursedEvent is emitted inside the disbursement transaction so the ledger
// integration can post the LOAN entry.
type DisbursedEvent struct {
	LoanID   int64
	Number   string
	MemberID int64
	Date     time.Time
	Amount   decimal.Decimal
	ActorID  int64
}

// SourceID is the deterministic journal source reference of a loan disbursement.
func SourceID(loanID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("CREDIT.DISBURSEMENT:"+strconv.FormatInt(loanID, 10)))
}

// Stats summarises the loan portfolio.
type Stats struct {
	Total              int             `json:"total"`
	Active             int             `json:"active"`
	Current            int             `json:"current"`
	Delinquent         int             `json:"delinquent"`
	Portfolio          decimal.Decimal `json:"portfolio"`
	TotalPenalty       decimal.Decimal `json:"total_penalty"`
	AverageDaysLate    decimal.Decimal `json:"average_days_late"`
	DelinquencyRatePct decimal.Decimal `json:"delinquency_rate_pct"`
}

// MoraResult reports one accrual run.
type MoraResult struct {
	AsOf         time.Time       `json:"as_of"`
	Loans        int             `json:"loans"`
	Installments int             `json:"installments"`
	TotalPenalty decimal.Decimal `json:"total_penalty"`
}

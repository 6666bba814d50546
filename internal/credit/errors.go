package credit

import "github.com/coopledger/coopledger/internal/shared"

// MinRejectReasonLength is the minimum trimmed length of a rejection reason.
const MinRejectReasonLength = 10

var (
	ErrLoanNotFound         = shared.NewError(shared.ErrNotFound, "credit: loan not found")
	ErrActiveDelinquency    = shared.NewError(shared.ErrConflict, "credit: member has a delinquent loan")
	ErrInvalidState         = shared.NewError(shared.ErrConflict, "credit: loan state does not allow this operation")
	ErrRejectReasonTooShort = shared.NewError(shared.ErrValidation, "credit: rejection reason must have at least 10 characters")
	ErrInvalidAmount        = shared.NewError(shared.ErrValidation, "credit: amount must be greater than zero")
	ErrInvalidTerm          = shared.NewError(shared.ErrValidation, "credit: term must be greater than zero")
	ErrInvalidRate          = shared.NewError(shared.ErrValidation, "credit: rate must not be negative")
	ErrInvalidType          = shared.NewError(shared.ErrValidation, "credit: unknown loan type")
	ErrInvalidDates         = shared.NewError(shared.ErrValidation, "credit: first payment must not precede disbursement")
	ErrMoraInProgress       = shared.NewError(shared.ErrConflict, "credit: mora accrual already running for this date")
	ErrLoanNumberCollision  = shared.NewError(shared.ErrNumberConflict, "credit: loan number taken by a concurrent request")
	ErrReceiptCollision     = shared.NewError(shared.ErrNumberConflict, "credit: receipt number taken by a concurrent payment")
	ErrPaymentInProgress    = shared.NewError(shared.ErrConcurrentUpdate, "credit: payment with this idempotency key is still being processed")
	ErrNoLedger             = shared.NewError(shared.ErrValidation, "credit: journal posting requested but no ledger is configured")
)

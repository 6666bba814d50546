package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// MinVoidReasonLength is the minimum trimmed length of a void reason.
const MinVoidReasonLength = 10

var (
	ErrTooFewMovements      = shared.NewError(shared.ErrValidation, "ledger: entry requires at least two movements")
	ErrInvalidMovement      = shared.NewError(shared.ErrValidation, "ledger: movement must carry exactly one positive side")
	ErrImbalancedEntry      = shared.NewError(shared.ErrValidation, "ledger: debits and credits differ")
	ErrInvalidMovementType  = shared.NewError(shared.ErrValidation, "ledger: unknown movement type")
	ErrAccountNotFound      = shared.NewError(shared.ErrNotFound, "ledger: movement account not found")
	ErrAccountNotPostable   = shared.NewError(shared.ErrValidation, "ledger: account does not accept movements")
	ErrAccountInactive      = shared.NewError(shared.ErrValidation, "ledger: account is inactive")
	ErrEntryNotFound        = shared.NewError(shared.ErrNotFound, "ledger: journal entry not found")
	ErrAlreadyVoided        = shared.NewError(shared.ErrConflict, "ledger: journal entry already voided")
	ErrVoidReasonTooShort   = shared.NewError(shared.ErrValidation, "ledger: void reason must have at least 10 characters")
	ErrEntryNumberCollision = shared.NewError(shared.ErrNumberConflict, "ledger: entry number taken by a concurrent posting")
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID      int64           `json:"account_id" validate:"required,gt=0"`
	Debit          decimal.Decimal `json:"debit" validate:"gte=0"`
	Credit         decimal.Decimal `json:"credit" validate:"gte=0"`
	ThirdPartyType string          `json:"third_party_type" validate:"max=30"`
	ThirdPartyID   *int64          `json:"third_party_id" validate:"omitempty,gt=0"`
	Description    string          `json:"description" validate:"max=300"`
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	MovementType MovementType
	Memo         string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	PostedBy     int64
	Lines        []PostingLineInput
}

// Validate checks the partida doble rules that need no database access and
// returns the rounded totals.
func (in PostingInput) Validate() (debit, credit decimal.Decimal, err error) {
	if in.Date.IsZero() {
		return debit, credit, shared.NewError(shared.ErrValidation, "ledger: entry date required")
	}
	if !in.MovementType.Valid() {
		return debit, credit, ErrInvalidMovementType
	}
	if len(in.Lines) < 2 {
		return debit, credit, ErrTooFewMovements
	}
	for idx, line := range in.Lines {
		if line.AccountID <= 0 {
			return debit, credit, fmt.Errorf("line %d: %w", idx+1, ErrInvalidMovement)
		}
		d, c := shared.RoundMoney(line.Debit), shared.RoundMoney(line.Credit)
		if d.IsNegative() || c.IsNegative() || d.IsPositive() == c.IsPositive() {
			return debit, credit, fmt.Errorf("line %d: %w", idx+1, ErrInvalidMovement)
		}
		debit = debit.Add(d)
		credit = credit.Add(c)
	}
	if debit.Sub(credit).Abs().GreaterThan(shared.Tolerance) {
		return debit, credit, fmt.Errorf("%w: debit %s credit %s", ErrImbalancedEntry, debit.StringFixed(2), credit.StringFixed(2))
	}
	return debit, credit, nil
}

// PostEntryRequest is the HTTP body for manual postings.
type PostEntryRequest struct {
	Date         string             `json:"date" validate:"required,datetime=2006-01-02"`
	MovementType MovementType       `json:"movement_type" validate:"required"`
	Memo         string             `json:"memo" validate:"required,max=500"`
	Reference    string             `json:"reference" validate:"max=50"`
	Lines        []PostingLineInput `json:"lines" validate:"required,min=2,dive"`
}

// ToInput converts the request into a manual posting by actorID.
func (r PostEntryRequest) ToInput(actorID int64) (PostingInput, error) {
	date, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return PostingInput{}, fmt.Errorf("%w: date must be YYYY-MM-DD", shared.ErrValidation)
	}
	return PostingInput{
		Date:         date,
		MovementType: MovementType(strings.ToUpper(string(r.MovementType))),
		Memo:         r.Memo,
		Reference:    r.Reference,
		SourceModule: SourceManual,
		PostedBy:     actorID,
		Lines:        r.Lines,
	}, nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID int64  `json:"-"`
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"-"`
}

func (in VoidInput) validate() error {
	if in.EntryID <= 0 {
		return ErrEntryNotFound
	}
	if len([]rune(strings.TrimSpace(in.Reason))) < MinVoidReasonLength {
		return ErrVoidReasonTooShort
	}
	return nil
}

// ListFilter narrows entry listings. Voided entries are excluded unless requested.
type ListFilter struct {
	From          *time.Time
	To            *time.Time
	MovementType  MovementType
	IncludeVoided bool
	Limit         int
	Offset        int
}

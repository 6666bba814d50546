package savings

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/shared"
)

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(httpx.DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", shared.ErrValidation, field)
	}
	return &t, nil
}

// OpenRequest is the HTTP body of an account opening.
type OpenRequest struct {
	MemberID       int64            `json:"member_id" validate:"required,gt=0"`
	Type           string           `json:"type" validate:"required"`
	InitialAmount  decimal.Decimal  `json:"initial_amount" validate:"gt=0"`
	AnnualRate     *decimal.Decimal `json:"annual_rate" validate:"omitempty,gte=0"`
	GoalAmount     *decimal.Decimal `json:"goal_amount" validate:"omitempty,gt=0"`
	MonthlyQuota   *decimal.Decimal `json:"monthly_quota" validate:"omitempty,gt=0"`
	ScheduledStart string           `json:"scheduled_start" validate:"omitempty,datetime=2006-01-02"`
	ScheduledEnd   string           `json:"scheduled_end" validate:"omitempty,datetime=2006-01-02"`
	TermDays       *int             `json:"term_days" validate:"omitempty,gt=0,lte=3650"`
	AutoRenew      bool             `json:"auto_renew"`
	Notes          string           `json:"notes" validate:"max=500"`
}

func (r OpenRequest) ToInput(actorID int64) (OpenInput, error) {
	start, err := parseOptionalDate("scheduled_start", r.ScheduledStart)
	if err != nil {
		return OpenInput{}, err
	}
	end, err := parseOptionalDate("scheduled_end", r.ScheduledEnd)
	if err != nil {
		return OpenInput{}, err
	}
	return OpenInput{
		MemberID:       r.MemberID,
		Type:           Type(strings.ToUpper(r.Type)),
		InitialAmount:  r.InitialAmount,
		AnnualRate:     r.AnnualRate,
		GoalAmount:     r.GoalAmount,
		MonthlyQuota:   r.MonthlyQuota,
		ScheduledStart: start,
		ScheduledEnd:   end,
		TermDays:       r.TermDays,
		AutoRenew:      r.AutoRenew,
		Notes:          r.Notes,
		ActorID:        actorID,
	}, nil
}

// MovementRequest is the HTTP body of a deposit or withdrawal.
type MovementRequest struct {
	Value       decimal.Decimal `json:"value" validate:"gt=0"`
	Description string          `json:"description" validate:"max=255"`
	Reference   string          `json:"reference" validate:"max=100"`
}

func (r MovementRequest) ToInput(accountID, actorID int64) MovementInput {
	return MovementInput{AccountID: accountID, Value: r.Value, Description: r.Description, Reference: r.Reference, ActorID: actorID}
}

// TransferRequest is the HTTP body of a transfer from the account in the path.
type TransferRequest struct {
	DestinationID int64           `json:"destination_account_id" validate:"required,gt=0"`
	Value         decimal.Decimal `json:"value" validate:"gt=0"`
	Description   string          `json:"description" validate:"max=255"`
}

// UpdateRequest is the HTTP body of an account update.
type UpdateRequest struct {
	AnnualRate   *decimal.Decimal `json:"annual_rate" validate:"omitempty,gte=0"`
	GoalAmount   *decimal.Decimal `json:"goal_amount" validate:"omitempty,gt=0"`
	MonthlyQuota *decimal.Decimal `json:"monthly_quota" validate:"omitempty,gt=0"`
	Notes        *string          `json:"notes" validate:"omitempty,max=500"`
}

type transferResponse struct {
	Out Movement `json:"out"`
	In  Movement `json:"in"`
}

package credit

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/credit/amortization"
	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/shared"
)

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(httpx.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", shared.ErrValidation, field)
	}
	return t, nil
}

// RequestRequest is the HTTP body of a loan request.
type RequestRequest struct {
	MemberID   int64           `json:"member_id" validate:"required,gt=0"`
	Type       string          `json:"type" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	AnnualRate decimal.Decimal `json:"annual_rate" validate:"gte=0"`
	TermMonths int             `json:"term_months" validate:"required,gt=0,lte=360"`
	Frequency  string          `json:"frequency" validate:"omitempty,oneof=MONTHLY BIWEEKLY WEEKLY"`
	Method     string          `json:"method" validate:"omitempty,oneof=FIXED DECLINING"`
	Purpose    string          `json:"purpose" validate:"max=500"`
}

func (r RequestRequest) ToInput(actorID int64) RequestInput {
	return RequestInput{
		MemberID:   r.MemberID,
		Type:       Type(strings.ToUpper(r.Type)),
		Amount:     r.Amount,
		AnnualRate: r.AnnualRate,
		TermMonths: r.TermMonths,
		Frequency:  amortization.Frequency(r.Frequency),
		Method:     amortization.Method(r.Method),
		Purpose:    r.Purpose,
		ActorID:    actorID,
	}
}

// ApproveRequest is the HTTP body of an approval.
type ApproveRequest struct {
	Amount     decimal.Decimal  `json:"approved_amount" validate:"gt=0"`
	AnnualRate *decimal.Decimal `json:"annual_rate"`
	TermMonths *int             `json:"term_months" validate:"omitempty,gt=0,lte=360"`
	Notes      string           `json:"notes" validate:"max=500"`
}

// RejectRequest is the HTTP body of a rejection.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// DisburseRequest is the HTTP body of a disbursement.
type DisburseRequest struct {
	DisbursementDate string `json:"disbursement_date" validate:"required,datetime=2006-01-02"`
	FirstPaymentDate string `json:"first_payment_date" validate:"required,datetime=2006-01-02"`
	PostJournal      *bool  `json:"post_journal"`
	Notes            string `json:"notes" validate:"max=500"`
}

func (r DisburseRequest) ToInput(loanID, actorID int64) (DisburseInput, error) {
	disbursed, err := parseDate("disbursement_date", r.DisbursementDate)
	if err != nil {
		return DisburseInput{}, err
	}
	first, err := parseDate("first_payment_date", r.FirstPaymentDate)
	if err != nil {
		return DisburseInput{}, err
	}
	return DisburseInput{
		LoanID:           loanID,
		DisbursementDate: disbursed,
		FirstPaymentDate: first,
		PostJournal:      r.PostJournal == nil || *r.PostJournal,
		Notes:            r.Notes,
		ActorID:          actorID,
	}, nil
}

// PaymentRequest is the HTTP body of a loan payment.
type PaymentRequest struct {
	Value     decimal.Decimal `json:"value" validate:"gt=0"`
	Date      string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Method    string          `json:"method" validate:"max=30"`
	Reference string          `json:"reference" validate:"max=100"`
	Notes     string          `json:"notes" validate:"max=500"`
}

func (r PaymentRequest) ToInput(loanID, actorID int64, key string) (PaymentInput, error) {
	in := PaymentInput{
		LoanID:         loanID,
		Value:          r.Value,
		Method:         r.Method,
		Reference:      r.Reference,
		Notes:          r.Notes,
		IdempotencyKey: strings.TrimSpace(key),
		ActorID:        actorID,
	}
	if r.Date != "" {
		date, err := parseDate("payment_date", r.Date)
		if err != nil {
			return PaymentInput{}, err
		}
		in.Date = date
	}
	return in, nil
}

// SimulateRequest is the HTTP body of a schedule preview.
type SimulateRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	AnnualRate decimal.Decimal `json:"annual_rate" validate:"gte=0"`
	TermMonths int             `json:"term_months" validate:"required,gt=0,lte=360"`
	StartDate  string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Frequency  string          `json:"frequency" validate:"omitempty,oneof=MONTHLY BIWEEKLY WEEKLY"`
	Method     string          `json:"method" validate:"omitempty,oneof=FIXED DECLINING"`
}

func (r SimulateRequest) ToTerms() (amortization.Terms, error) {
	terms := amortization.Terms{
		Principal:  r.Amount,
		AnnualRate: r.AnnualRate,
		Periods:    r.TermMonths,
		Frequency:  amortization.Frequency(r.Frequency),
		Method:     amortization.Method(r.Method),
	}
	if r.StartDate != "" {
		start, err := parseDate("start_date", r.StartDate)
		if err != nil {
			return amortization.Terms{}, err
		}
		terms.Start = start
	}
	return terms, nil
}

// Package amortization generates loan repayment schedules.
package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// Method selects how principal is spread across installments.
type Method string

const (
	// MethodFixed is the French annuity: a level installment value.
	MethodFixed Method = "FIXED"
	// MethodDeclining is the German method: constant principal, declining interest.
	MethodDeclining Method = "DECLINING"
)

func (m Method) Valid() bool { return m == MethodFixed || m == MethodDeclining }

// Frequency is the spacing between due dates.
type Frequency string

const (
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyWeekly   Frequency = "WEEKLY"
)

func (f Frequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyBiweekly || f == FrequencyWeekly
}

var ErrInvalidTerms = shared.NewError(shared.ErrValidation, "amortization: principal and periods must be positive and rate non-negative")

// Terms describe the loan to schedule. AnnualRate is a percentage.
type Terms struct {
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal
	Periods    int
	Start      time.Time
	Frequency  Frequency
	Method     Method
}

// Installment is one row of the schedule.
type Installment struct {
	Sequence       int             `json:"sequence"`
	DueDate        time.Time       `json:"due_date"`
	Value          decimal.Decimal `json:"value"`
	Principal      decimal.Decimal `json:"principal"`
	Interest       decimal.Decimal `json:"interest"`
	RemainingAfter decimal.Decimal `json:"remaining_after"`
}

// Summary aggregates a schedule.
type Summary struct {
	InstallmentValue decimal.Decimal `json:"installment_value"`
	TotalInterest    decimal.Decimal `json:"total_interest"`
	TotalPayable     decimal.Decimal `json:"total_payable"`
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// PeriodicRate converts an annual percentage to the periodic rate annual/100/12.
func PeriodicRate(annual decimal.Decimal) decimal.Decimal {
	return annual.Div(hundred).Div(twelve)
}

// LevelInstallment is the French annuity value P*r*(1+r)^n / ((1+r)^n - 1),
// or P/n without interest, rounded to cents.
func LevelInstallment(principal decimal.Decimal, rate decimal.Decimal, periods int) decimal.Decimal {
	n := decimal.NewFromInt(int64(periods))
	if rate.IsZero() {
		return shared.RoundMoney(principal.Div(n))
	}
	factor := decimal.NewFromInt(1).Add(rate).Pow(n)
	return shared.RoundMoney(principal.Mul(rate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))))
}

// Generate builds the schedule. The first installment is due on Start. The
// principal components sum exactly to the principal and the final
// RemainingAfter is zero.
func Generate(t Terms) ([]Installment, error) {
	principal := shared.RoundMoney(t.Principal)
	if !principal.IsPositive() || t.Periods <= 0 || t.AnnualRate.IsNegative() || t.Start.IsZero() {
		return nil, ErrInvalidTerms
	}
	if t.Method == "" {
		t.Method = MethodFixed
	}
	if t.Frequency == "" {
		t.Frequency = FrequencyMonthly
	}
	if !t.Method.Valid() || !t.Frequency.Valid() {
		return nil, ErrInvalidTerms
	}

	rate := PeriodicRate(t.AnnualRate)
	level := LevelInstallment(principal, rate, t.Periods)
	constant := shared.RoundMoney(principal.Div(decimal.NewFromInt(int64(t.Periods))))

	rows := make([]Installment, 0, t.Periods)
	balance := principal
	for k := 0; k < t.Periods; k++ {
		interest := shared.RoundMoney(balance.Mul(rate))
		var capital decimal.Decimal
		switch {
		case k == t.Periods-1:
			capital = balance
		case t.Method == MethodFixed:
			capital = level.Sub(interest)
		default:
			capital = constant
		}
		if capital.GreaterThan(balance) {
			capital = balance
		}
		if capital.IsNegative() {
			capital = decimal.Zero
		}
		balance = balance.Sub(capital)
		rows = append(rows, Installment{
			Sequence:       k + 1,
			DueDate:        DueDate(t.Start, t.Frequency, k),
			Value:          capital.Add(interest),
			Principal:      capital,
			Interest:       interest,
			RemainingAfter: balance,
		})
	}
	return rows, nil
}

// DueDate returns the date of the installment k periods after start. Monthly
// dates keep the anchor day, clamped to the end of shorter months.
func DueDate(start time.Time, f Frequency, k int) time.Time {
	switch f {
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 15*k)
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*k)
	}
	first := time.Date(start.Year(), start.Month()+time.Month(k), 1, 0, 0, 0, 0, start.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := start.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, start.Hour(), start.Minute(), start.Second(), 0, start.Location())
}

// Summarize reports the first installment value and the schedule totals.
func Summarize(rows []Installment) Summary {
	var s Summary
	for i, r := range rows {
		if i == 0 {
			s.InstallmentValue = r.Value
		}
		s.TotalInterest = s.TotalInterest.Add(r.Interest)
		s.TotalPayable = s.TotalPayable.Add(r.Value)
	}
	return s
}

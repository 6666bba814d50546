package savings

import (
	"github.com/shopspring/decimal"
)

// Settings are the cooperative-wide savings parameters. Rates are annual
// percentages; GMFRate is per thousand.
type Settings struct {
	OnDemandRate         decimal.Decimal `json:"on_demand_rate"`
	ScheduledRate        decimal.Decimal `json:"scheduled_rate"`
	TermDepositRate      decimal.Decimal `json:"term_deposit_rate"`
	ContributionsRate    decimal.Decimal `json:"contributions_rate"`
	ContractualRate      decimal.Decimal `json:"contractual_rate"`
	MinOpening           decimal.Decimal `json:"min_opening"`
	MinDeposit           decimal.Decimal `json:"min_deposit"`
	MinTermDeposit       decimal.Decimal `json:"min_term_deposit"`
	GMFActive            bool            `json:"gmf_active"`
	GMFRate              decimal.Decimal `json:"gmf_rate"`
	MonthlyManagementFee decimal.Decimal `json:"monthly_management_fee"`
}

// DefaultSettings apply until an operator saves their own.
func DefaultSettings() Settings {
	return Settings{
		OnDemandRate:         decimal.RequireFromString("0.5"),
		ScheduledRate:        decimal.RequireFromString("2.0"),
		TermDepositRate:      decimal.RequireFromString("4.0"),
		ContributionsRate:    decimal.RequireFromString("1.0"),
		ContractualRate:      decimal.Zero,
		MinOpening:           decimal.NewFromInt(50000),
		MinDeposit:           decimal.NewFromInt(10000),
		MinTermDeposit:       decimal.NewFromInt(1000000),
		GMFActive:            true,
		GMFRate:              decimal.RequireFromString("0.4"),
		MonthlyManagementFee: decimal.Zero,
	}
}

// RateFor is the default annual rate of a product.
func (s Settings) RateFor(t Type) decimal.Decimal {
	switch t {
	case TypeOnDemand:
		return s.OnDemandRate
	case TypeScheduled:
		return s.ScheduledRate
	case TypeTermDeposit:
		return s.TermDepositRate
	case TypeContributions:
		return s.ContributionsRate
	case TypeContractual:
		return s.ContractualRate
	}
	return decimal.Zero
}

// GMF is the financial transaction tax on a withdrawal of value, or zero when
// the tax is disabled.
func (s Settings) GMF(value decimal.Decimal) decimal.Decimal {
	if !s.GMFActive || !s.GMFRate.IsPositive() {
		return decimal.Zero
	}
	return value.Mul(s.GMFRate).Div(decimal.NewFromInt(1000)).Round(2)
}

// SettingsUpdate changes only the fields that are set.
type SettingsUpdate struct {
	OnDemandRate         *decimal.Decimal `json:"on_demand_rate" validate:"omitempty,gte=0"`
	ScheduledRate        *decimal.Decimal `json:"scheduled_rate" validate:"omitempty,gte=0"`
	TermDepositRate      *decimal.Decimal `json:"term_deposit_rate" validate:"omitempty,gte=0"`
	ContributionsRate    *decimal.Decimal `json:"contributions_rate" validate:"omitempty,gte=0"`
	ContractualRate      *decimal.Decimal `json:"contractual_rate" validate:"omitempty,gte=0"`
	MinOpening           *decimal.Decimal `json:"min_opening" validate:"omitempty,gte=0"`
	MinDeposit           *decimal.Decimal `json:"min_deposit" validate:"omitempty,gte=0"`
	MinTermDeposit       *decimal.Decimal `json:"min_term_deposit" validate:"omitempty,gte=0"`
	GMFActive            *bool            `json:"gmf_active"`
	GMFRate              *decimal.Decimal `json:"gmf_rate" validate:"omitempty,gte=0"`
	MonthlyManagementFee *decimal.Decimal `json:"monthly_management_fee" validate:"omitempty,gte=0"`
}

func (u SettingsUpdate) apply(s Settings) (Settings, error) {
	for _, v := range []*decimal.Decimal{u.OnDemandRate, u.ScheduledRate, u.TermDepositRate, u.ContributionsRate,
		u.ContractualRate, u.MinOpening, u.MinDeposit, u.MinTermDeposit, u.GMFRate, u.MonthlyManagementFee} {
		if v != nil && v.IsNegative() {
			return s, ErrInvalidSettings
		}
	}
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.OnDemandRate, u.OnDemandRate)
	set(&s.ScheduledRate, u.ScheduledRate)
	set(&s.TermDepositRate, u.TermDepositRate)
	set(&s.ContributionsRate, u.ContributionsRate)
	set(&s.ContractualRate, u.ContractualRate)
	set(&s.MinOpening, u.MinOpening)
	set(&s.MinDeposit, u.MinDeposit)
	set(&s.MinTermDeposit, u.MinTermDeposit)
	set(&s.GMFRate, u.GMFRate)
	set(&s.MonthlyManagementFee, u.MonthlyManagementFee)
	if u.GMFActive != nil {
		s.GMFActive = *u.GMFActive
	}
	return s, nil
}

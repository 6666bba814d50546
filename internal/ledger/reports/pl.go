package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger/accounts"
	"github.com/coopledger/coopledger/internal/ledger/balances"
)

// LineItem is one account inside a report section.
type LineItem struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Section groups accounts of one nature with their total.
type Section struct {
	Label    string          `json:"label"`
	Accounts []LineItem      `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

func (s *Section) add(acc balances.AccountTotal) {
	row := LineItem{Code: acc.Code, Name: acc.Name, Amount: acc.Net()}
	s.Accounts = append(s.Accounts, row)
	s.Total = s.Total.Add(row.Amount)
}

func (s *Section) sort() {
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].Code < s.Accounts[j].Code })
}

// IncomeStatement is the structured profit and loss for a period.
type IncomeStatement struct {
	Income    Section         `json:"income"`
	Expense   Section         `json:"expense"`
	NetIncome decimal.Decimal `json:"net_income"`
	// MarginPct is net income over income in percent, zero without income.
	MarginPct decimal.Decimal `json:"margin_pct"`
}

var hundred = decimal.NewFromInt(100)

// BuildIncomeStatement aggregates accounts into income and expense sections.
func BuildIncomeStatement(totals []balances.AccountTotal) IncomeStatement {
	income := Section{Label: "Ingresos"}
	expense := Section{Label: "Gastos"}
	for _, acc := range totals {
		switch acc.Type {
		case accounts.AccountTypeIncome:
			income.add(acc)
		case accounts.AccountTypeExpense:
			expense.add(acc)
		}
	}
	income.sort()
	expense.sort()

	net := income.Total.Sub(expense.Total)
	margin := decimal.Zero
	if !income.Total.IsZero() {
		margin = net.Div(income.Total).Mul(hundred).Round(2)
	}
	return IncomeStatement{Income: income, Expense: expense, NetIncome: net, MarginPct: margin}
}

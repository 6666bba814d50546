package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Tolerance is the largest rounding difference accepted between money totals.
var Tolerance = decimal.New(1, -2)

var displayLocale = language.MustParse("es-CO")

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders an amount with the cooperative's locale grouping, e.g. $1.200.000,00.
func FormatMoney(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return message.NewPrinter(displayLocale).Sprintf("$%.2f", f)
}

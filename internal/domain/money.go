package domain

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount with the currency's symbol and grouping, e.g. "$1,234.50".
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		cur = money.GetCurrency(money.USD)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// ToFloat converts an amount for JSON output, rounded to 4 decimal places.
func ToFloat(amount decimal.Decimal) float64 {
	return amount.Round(4).InexactFloat64()
}

// Package money formats monetary totals using integer minor units and
// ISO-4217 currency rules.
package money

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// BRL is the currency of every statement layout the importer knows.
const BRL = "BRL"

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates a new Money value from minor units and a currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// NewFromDecimal creates Money from a decimal value, rounding half away from
// zero to the currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	fraction := 2
	if c := money.GetCurrency(currencyCode); c != nil {
		fraction = c.Fraction
	}
	cents := amount.Shift(int32(fraction)).Round(0).IntPart()
	return New(cents, currencyCode)
}

// Display returns the value formatted for the currency's locale, e.g.
// "R$1.234,56".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// FormatBRL renders amount as Brazilian Reais.
func FormatBRL(amount decimal.Decimal) string {
	return NewFromDecimal(amount, BRL).Display()
}

// Package currency converts amounts between currencies using an externally
// supplied rate table. Rates are data, never computed here.
package currency

import (
	"github.com/shopspring/decimal"

	"billbook/internal/core"
)

// Pair is a directed conversion from one currency to another.
type Pair struct {
	From core.Currency
	To   core.Currency
}

// RateTable maps a pair to the number of To units per one From unit.
type RateTable map[Pair]decimal.Decimal

// NewRateTable builds a table from stored exchange-rate records.
func NewRateTable(rates []core.ExchangeRate) RateTable {
	t := make(RateTable, len(rates))
	for _, r := range rates {
		t.Set(r.From, r.To, r.Rate)
	}
	return t
}

// Set stores a rate, normalizing both codes.
func (t RateTable) Set(from, to core.Currency, rate decimal.Decimal) {
	t[Pair{From: core.NormalizeCurrency(string(from)), To: core.NormalizeCurrency(string(to))}] = rate
}

// Rate returns the multiplier for from→to. A direct entry wins; otherwise
// the reciprocal of the inverse entry is used. Identical codes yield 1.
func (t RateTable) Rate(from, to core.Currency) (decimal.Decimal, error) {
	from = core.NormalizeCurrency(string(from))
	to = core.NormalizeCurrency(string(to))
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := t[Pair{From: from, To: to}]; ok && r.IsPositive() {
		return r, nil
	}
	if inv, ok := t[Pair{From: to, To: from}]; ok && inv.IsPositive() {
		return decimal.NewFromInt(1).Div(inv), nil
	}
	return decimal.Zero, &core.MissingRateError{From: from, To: to}
}

// Convert returns amount expressed in to. A missing pair is a
// *core.MissingRateError; it never defaults to 1:1.
func Convert(amount decimal.Decimal, from, to core.Currency, table RateTable) (decimal.Decimal, error) {
	rate, err := table.Rate(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// ConvertMoney converts and rounds half-up to cents.
func ConvertMoney(m core.Money, from, to core.Currency, table RateTable) (core.Money, error) {
	if core.NormalizeCurrency(string(from)) == core.NormalizeCurrency(string(to)) {
		return m, nil
	}
	d, err := Convert(m.Decimal(), from, to, table)
	if err != nil {
		return core.Money{}, err
	}
	return core.MoneyFromDecimal(d), nil
}

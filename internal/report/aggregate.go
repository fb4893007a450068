// Package report computes summaries over expenses, time entries and invoices
// and writes them out as CSV.
package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"billbook/internal/core"
	"billbook/internal/currency"
)

// Uncategorized collects records without a category so that the category
// breakdown always adds up to the total.
const Uncategorized = "Uncategorized"

// Record is the common shape every aggregated entity is reduced to.
type Record struct {
	Date      core.Date
	Amount    core.Money
	Currency  core.Currency
	Category  string
	Status    string
	ProjectID string
	ClientID  string
}

// Filter narrows the records considered. Zero fields are unconstrained and
// both date bounds are inclusive.
type Filter struct {
	ProjectID string    `json:"projectId,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	StartDate core.Date `json:"startDate"`
	EndDate   core.Date `json:"endDate"`
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	if f.ProjectID != "" && r.ProjectID != f.ProjectID {
		return false
	}
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	return r.Date.Within(f.StartDate, f.EndDate)
}

// Key identifies the filter for caching.
func (f Filter) Key() string {
	return fmt.Sprintf("p=%s|c=%s|from=%s|to=%s", f.ProjectID, f.ClientID, f.StartDate, f.EndDate)
}

// Options changes how amounts are totalled. With ConvertTo set, every record
// is converted before it is added and a missing rate fails the whole summary.
type Options struct {
	ConvertTo core.Currency
	Rates     currency.RateTable
}

// Summary is the result of an aggregation. ByCurrency always holds sums in
// each record's own currency. The other totals are in Currency when a
// conversion was requested; otherwise amounts of different currencies are
// added as plain numbers.
type Summary struct {
	Count         int                          `json:"count"`
	Currency      core.Currency                `json:"currency,omitempty"`
	TotalAmount   core.Money                   `json:"totalAmount"`
	AverageAmount core.Money                   `json:"averageAmount"`
	ByCategory    map[string]core.Money        `json:"byCategory"`
	ByStatus      map[string]core.Money        `json:"byStatus"`
	ByProject     map[string]core.Money        `json:"byProject"`
	ByClient      map[string]core.Money        `json:"byClient"`
	ByCurrency    map[core.Currency]core.Money `json:"byCurrency"`
}

// MixedCurrency reports whether the summed records spanned several currencies.
func (s Summary) MixedCurrency() bool {
	return len(s.ByCurrency) > 1
}

func newSummary() Summary {
	return Summary{
		ByCategory: map[string]core.Money{},
		ByStatus:   map[string]core.Money{},
		ByProject:  map[string]core.Money{},
		ByClient:   map[string]core.Money{},
		ByCurrency: map[core.Currency]core.Money{},
	}
}

// Aggregate sums the matching records without any currency conversion.
func Aggregate(records []Record, f Filter) Summary {
	s, _ := AggregateWithOptions(records, f, Options{})
	return s
}

// AggregateWithOptions sums the matching records, converting them first when
// opts.ConvertTo is set.
func AggregateWithOptions(records []Record, f Filter, opts Options) (Summary, error) {
	s := newSummary()
	if opts.ConvertTo != "" {
		s.Currency = core.NormalizeCurrency(string(opts.ConvertTo))
	}

	for _, r := range records {
		if !f.Match(r) {
			continue
		}
		amount := r.Amount
		if s.Currency != "" {
			converted, err := currency.ConvertMoney(r.Amount, r.Currency, s.Currency, opts.Rates)
			if err != nil {
				return newSummary(), fmt.Errorf("aggregate %s record: %w", r.Currency, err)
			}
			amount = converted
		}

		s.Count++
		s.TotalAmount = s.TotalAmount.Add(amount)
		category := r.Category
		if category == "" {
			category = Uncategorized
		}
		addTo(s.ByCategory, category, amount)
		addTo(s.ByStatus, r.Status, amount)
		addTo(s.ByProject, r.ProjectID, amount)
		addTo(s.ByClient, r.ClientID, amount)
		if r.Currency != "" {
			s.ByCurrency[r.Currency] = s.ByCurrency[r.Currency].Add(r.Amount)
		}
	}

	if s.Count > 0 {
		avg := s.TotalAmount.Decimal().Div(decimal.NewFromInt(int64(s.Count)))
		s.AverageAmount = core.MoneyFromDecimal(avg)
	}
	return s, nil
}

// addTo accumulates under key; records without a key are left out of the map.
func addTo(m map[string]core.Money, key string, amount core.Money) {
	if key == "" {
		return
	}
	m[key] = m[key].Add(amount)
}

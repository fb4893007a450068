// Package invoicing turns billable time into invoice totals and tracks
// payments against them.
//
// An invoice's total is computed once, when the invoice is created, and is
// stored on the invoice together with a copy of every billed line. Later edits
// to the source time entries or to project rates never change it.
package invoicing

import (
	"fmt"
	"sort"

	"billbook/internal/core"
)

// Totals is the computed value of a set of time entries. ByCurrency is keyed
// by each project's currency; amounts in different currencies are never added.
type Totals struct {
	Lines      []core.InvoiceLine           `json:"lines"`
	ByCurrency map[core.Currency]core.Money `json:"byCurrency"`
}

// Calculate values each entry at hours × its project's hourly rate. Each line
// is rounded half-up to cents before it is added to the total, so the lines
// always sum to the total.
func Calculate(entries []core.TimeEntry, projects map[string]core.Project) (Totals, error) {
	t := Totals{ByCurrency: map[core.Currency]core.Money{}}
	for _, te := range entries {
		p, ok := projects[te.ProjectID]
		if !ok {
			return Totals{}, fmt.Errorf("project %s of time entry %s: %w", te.ProjectID, te.ID, core.ErrNotFound)
		}
		amount := core.MoneyFromDecimal(te.Hours.Mul(p.HourlyRate.Decimal()))
		t.Lines = append(t.Lines, core.InvoiceLine{
			TimeEntryID: te.ID,
			ProjectID:   te.ProjectID,
			Date:        te.Date,
			Description: te.Description,
			Hours:       te.Hours,
			Rate:        p.HourlyRate,
			Amount:      amount,
		})
		t.ByCurrency[p.Currency] = t.ByCurrency[p.Currency].Add(amount)
	}
	sort.SliceStable(t.Lines, func(i, j int) bool {
		return t.Lines[i].Date.Before(t.Lines[j].Date.Time)
	})
	return t, nil
}

// Currencies lists the currencies present, sorted.
func (t Totals) Currencies() []core.Currency {
	out := make([]core.Currency, 0, len(t.ByCurrency))
	for c := range t.ByCurrency {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Single returns the only currency and its total. More than one currency is
// a validation error because one invoice carries one currency.
func (t Totals) Single() (core.Currency, core.Money, error) {
	switch len(t.ByCurrency) {
	case 0:
		return "", core.Money{}, &core.ValidationError{Field: "timeEntryIds", Message: "no time entries to invoice"}
	case 1:
		for c, m := range t.ByCurrency {
			return c, m, nil
		}
	}
	return "", core.Money{}, core.NewValidationError("timeEntryIds",
		"time entries span several currencies %v; invoice each currency separately", t.Currencies())
}

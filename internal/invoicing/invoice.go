package invoicing

import (
	"fmt"
	"strconv"
	"strings"

	"billbook/internal/core"
)

// DefaultTermDays is used when a draft has no due date.
const DefaultTermDays = 30

// Draft carries the caller-supplied parts of a new invoice.
type Draft struct {
	ClientID     string    `json:"clientId"`
	IssueDate    core.Date `json:"issueDate"`
	DueDate      core.Date `json:"dueDate"`
	TimeEntryIDs []string  `json:"timeEntryIds,omitempty"`
	Notes        string    `json:"notes,omitempty"`

	// Manual invoices only.
	Amount   core.Money    `json:"amount"`
	Currency core.Currency `json:"currency,omitempty"`
}

// Manual reports whether the draft describes a fixed-amount invoice.
func (d Draft) Manual() bool {
	return len(d.TimeEntryIDs) == 0 && d.Amount.Cents != 0
}

func (d Draft) validate() error {
	if strings.TrimSpace(d.ClientID) == "" {
		return core.ErrEmptyClient
	}
	if err := d.IssueDate.Validate(); err != nil {
		return &core.ValidationError{Field: "issueDate", Message: "issue date is required"}
	}
	if !d.DueDate.IsZero() && d.DueDate.Before(d.IssueDate.Time) {
		return &core.ValidationError{Field: "dueDate", Message: "due date is before issue date"}
	}
	return nil
}

func (d Draft) dueDate() core.Date {
	if !d.DueDate.IsZero() {
		return d.DueDate
	}
	return core.DateOf(d.IssueDate.AddDate(0, 0, DefaultTermDays))
}

// NewFromEntries builds a time-based invoice. Every entry must be billable,
// not yet invoiced and belong to a project of the draft's client. The total is
// a snapshot of the entries as they are now.
func NewFromEntries(d Draft, entries []core.TimeEntry, projects map[string]core.Project) (core.Invoice, error) {
	if err := d.validate(); err != nil {
		return core.Invoice{}, err
	}
	if len(entries) == 0 {
		return core.Invoice{}, &core.ValidationError{Field: "timeEntryIds", Message: "no time entries to invoice"}
	}

	ids := make([]string, 0, len(entries))
	for _, te := range entries {
		if !te.IsBillable {
			return core.Invoice{}, core.NewValidationError("timeEntryIds", "time entry %s is not billable", te.ID)
		}
		if te.InvoiceID != "" {
			return core.Invoice{}, core.NewValidationError("timeEntryIds", "time entry %s is already on invoice %s", te.ID, te.InvoiceID)
		}
		if p, ok := projects[te.ProjectID]; ok && p.ClientID != d.ClientID {
			return core.Invoice{}, core.NewValidationError("timeEntryIds", "time entry %s belongs to another client", te.ID)
		}
		ids = append(ids, te.ID)
	}

	totals, err := Calculate(entries, projects)
	if err != nil {
		return core.Invoice{}, err
	}
	cur, total, err := totals.Single()
	if err != nil {
		return core.Invoice{}, err
	}

	return core.Invoice{
		ClientID:      d.ClientID,
		IssueDate:     d.IssueDate,
		DueDate:       d.dueDate(),
		TimeEntryIDs:  ids,
		Lines:         totals.Lines,
		Currency:      cur,
		TotalAmount:   total,
		Status:        core.InvoiceDraft,
		PaymentStatus: core.PaymentUnpaid,
		Notes:         d.Notes,
	}, nil
}

// NewManual builds a fixed-amount invoice with no time entries.
func NewManual(d Draft) (core.Invoice, error) {
	if err := d.validate(); err != nil {
		return core.Invoice{}, err
	}
	if err := d.Amount.Validate(); err != nil {
		return core.Invoice{}, err
	}
	cur := core.NormalizeCurrency(string(d.Currency))
	if err := cur.Validate(); err != nil {
		return core.Invoice{}, err
	}
	return core.Invoice{
		ClientID:      d.ClientID,
		IssueDate:     d.IssueDate,
		DueDate:       d.dueDate(),
		Manual:        true,
		Currency:      cur,
		TotalAmount:   d.Amount,
		Status:        core.InvoiceDraft,
		PaymentStatus: core.PaymentUnpaid,
		Notes:         d.Notes,
	}, nil
}

// NextNumber returns the next sequential number for the issue year, in the
// form INV-2025-0007. Numbers of cancelled invoices are not reused.
func NextNumber(existing []core.Invoice, year int) string {
	prefix := fmt.Sprintf("INV-%d-", year)
	highest := 0
	for _, inv := range existing {
		if !strings.HasPrefix(inv.Number, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(inv.Number, prefix)); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, highest+1)
}

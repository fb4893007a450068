package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"billbook/internal/core"
)

const (
	CategoryBillable    = "billable"
	CategoryNonBillable = "non-billable"
	StatusInvoiced      = "invoiced"
	StatusUninvoiced    = "uninvoiced"
)

// FromExpenses reduces expenses to records. The client is resolved through
// the expense's project; unknown projects leave it empty.
func FromExpenses(expenses []core.Expense, projects map[string]core.Project) []Record {
	out := make([]Record, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, Record{
			Date:      e.Date,
			Amount:    e.Amount,
			Currency:  e.Currency,
			Category:  e.Category,
			Status:    string(e.Status),
			ProjectID: e.ProjectID,
			ClientID:  projects[e.ProjectID].ClientID,
		})
	}
	return out
}

// FromInvoices reduces invoices to records keyed by payment status.
// Cancelled invoices are skipped.
func FromInvoices(invoices []core.Invoice) []Record {
	out := make([]Record, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status == core.InvoiceCancelled {
			continue
		}
		out = append(out, invoiceRecord(inv))
	}
	return out
}

// MatchInvoice reports whether inv passes f. A project filter matches when any
// line bills that project.
func MatchInvoice(f Filter, inv core.Invoice) bool {
	rec := invoiceRecord(inv)
	if f.ProjectID == "" || len(inv.Lines) < 2 {
		return f.Match(rec)
	}
	for _, l := range inv.Lines {
		rec.ProjectID = l.ProjectID
		if f.Match(rec) {
			return true
		}
	}
	return false
}

// invoiceRecord attributes the invoice to its first line's project.
func invoiceRecord(inv core.Invoice) Record {
	category := "time"
	if inv.Manual {
		category = "manual"
	}
	var projectID string
	if len(inv.Lines) > 0 {
		projectID = inv.Lines[0].ProjectID
	}
	return Record{
		Date:      inv.IssueDate,
		Amount:    inv.TotalAmount,
		Currency:  inv.Currency,
		Category:  category,
		Status:    string(inv.PaymentStatus),
		ProjectID: projectID,
		ClientID:  inv.ClientID,
	}
}

// FromTimeEntries values each entry at its project's hourly rate.
func FromTimeEntries(entries []core.TimeEntry, projects map[string]core.Project) []Record {
	out := make([]Record, 0, len(entries))
	for _, te := range entries {
		p := projects[te.ProjectID]
		category := CategoryNonBillable
		if te.IsBillable {
			category = CategoryBillable
		}
		status := StatusUninvoiced
		if te.InvoiceID != "" {
			status = StatusInvoiced
		}
		out = append(out, Record{
			Date:      te.Date,
			Amount:    core.MoneyFromDecimal(te.Hours.Mul(p.HourlyRate.Decimal())),
			Currency:  p.Currency,
			Category:  category,
			Status:    status,
			ProjectID: te.ProjectID,
			ClientID:  p.ClientID,
		})
	}
	return out
}

// TimeSummary totals hours rather than money.
type TimeSummary struct {
	Entries        int                          `json:"entries"`
	TotalHours     decimal.Decimal              `json:"totalHours"`
	BillableHours  decimal.Decimal              `json:"billableHours"`
	UnbilledHours  decimal.Decimal              `json:"unbilledHours"`
	ByProject      map[string]decimal.Decimal   `json:"byProject"`
	ByDay          map[string]decimal.Decimal   `json:"byDay"`
	BillableAmount map[core.Currency]core.Money `json:"billableAmount"`
	Days           []string                     `json:"days"`
}

// SummarizeTime totals hours per project and per day. Unbilled hours are
// billable hours not yet attached to an invoice.
func SummarizeTime(entries []core.TimeEntry, projects map[string]core.Project, f Filter) TimeSummary {
	s := TimeSummary{
		ByProject:      map[string]decimal.Decimal{},
		ByDay:          map[string]decimal.Decimal{},
		BillableAmount: map[core.Currency]core.Money{},
	}
	for _, te := range entries {
		p := projects[te.ProjectID]
		r := Record{Date: te.Date, ProjectID: te.ProjectID, ClientID: p.ClientID}
		if !f.Match(r) {
			continue
		}
		s.Entries++
		s.TotalHours = s.TotalHours.Add(te.Hours)
		s.ByProject[te.ProjectID] = s.ByProject[te.ProjectID].Add(te.Hours)
		day := te.Date.String()
		s.ByDay[day] = s.ByDay[day].Add(te.Hours)
		if te.IsBillable {
			s.BillableHours = s.BillableHours.Add(te.Hours)
			if te.InvoiceID == "" {
				s.UnbilledHours = s.UnbilledHours.Add(te.Hours)
			}
			if p.Currency != "" {
				amount := core.MoneyFromDecimal(te.Hours.Mul(p.HourlyRate.Decimal()))
				s.BillableAmount[p.Currency] = s.BillableAmount[p.Currency].Add(amount)
			}
		}
	}
	for day := range s.ByDay {
		s.Days = append(s.Days, day)
	}
	sort.Strings(s.Days)
	return s
}

// RevenueLine is the invoicing position in one currency.
type RevenueLine struct {
	Invoices    int        `json:"invoices"`
	Invoiced    core.Money `json:"invoiced"`
	Paid        core.Money `json:"paid"`
	Outstanding core.Money `json:"outstanding"`
	Overdue     core.Money `json:"overdue"`
}

// RevenueSummary never adds across currencies.
type RevenueSummary struct {
	ByCurrency map[core.Currency]RevenueLine `json:"byCurrency"`
}

// SummarizeRevenue groups non-cancelled invoices by currency. Invoices are
// filtered on issue date, client and any billed project.
func SummarizeRevenue(invoices []core.Invoice, f Filter) RevenueSummary {
	s := RevenueSummary{ByCurrency: map[core.Currency]RevenueLine{}}
	for _, inv := range invoices {
		if inv.Status == core.InvoiceCancelled || !MatchInvoice(f, inv) {
			continue
		}
		line := s.ByCurrency[inv.Currency]
		line.Invoices++
		line.Invoiced = line.Invoiced.Add(inv.TotalAmount)
		line.Paid = line.Paid.Add(inv.PaidAmount)
		line.Outstanding = line.Outstanding.Add(inv.Outstanding())
		if inv.PaymentStatus == core.PaymentOverdue {
			line.Overdue = line.Overdue.Add(inv.Outstanding())
		}
		s.ByCurrency[inv.Currency] = line
	}
	return s
}

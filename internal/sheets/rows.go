package sheets

import (
	"sort"

	"billbook/internal/core"
	"billbook/internal/report"
)

// Header returns the first row of a tab.
func Header(tab Tab) []any {
	switch tab {
	case TabExpenses:
		return []any{"ID", "Date", "Amount", "Currency", "Category", "Description", "Vendor", "Status", "Project", "Billable"}
	case TabTime:
		return []any{"ID", "Date", "Start", "Stop", "Hours", "Project", "Description", "Billable", "Invoice"}
	case TabInvoices:
		return []any{"ID", "Number", "Client", "Issue date", "Due date", "Currency", "Total", "Paid", "Status"}
	case TabSummary:
		return []any{"Group", "Key", "Amount"}
	}
	return nil
}

// TabFor maps a ledger collection to its tab. Collections that are not
// exported row by row report false.
func TabFor(collection string) (Tab, bool) {
	switch collection {
	case core.CollectionExpenses:
		return TabExpenses, true
	case core.CollectionTime:
		return TabTime, true
	case core.CollectionInvoices:
		return TabInvoices, true
	}
	return "", false
}

// Amounts are written as plain decimal strings so USER_ENTERED input turns
// them into numbers without float rounding.
func ExpenseRow(e core.Expense) []any {
	return []any{e.ID, e.Date.String(), e.Amount.String(), string(e.Currency), e.Category, e.Description, e.Vendor, string(e.Status), e.ProjectID, e.IsBillable}
}

func TimeEntryRow(te core.TimeEntry) []any {
	var start, stop string
	if te.StartTime != nil {
		start = te.StartTime.String()
	}
	if te.StopTime != nil {
		stop = te.StopTime.String()
	}
	return []any{te.ID, te.Date.String(), start, stop, te.Hours.StringFixed(2), te.ProjectID, te.Description, te.IsBillable, te.InvoiceID}
}

func InvoiceRow(inv core.Invoice) []any {
	return []any{inv.ID, inv.Number, inv.ClientID, inv.IssueDate.String(), inv.DueDate.String(), string(inv.Currency), inv.TotalAmount.String(), inv.PaidAmount.String(), string(inv.PaymentStatus)}
}

// SummaryRows flattens an expense summary into group/key/amount rows with
// keys sorted inside each group.
func SummaryRows(s report.Summary) [][]any {
	rows := [][]any{Header(TabSummary), {"Total", "", s.TotalAmount.String()}}
	groups := []struct {
		name string
		m    map[string]core.Money
	}{
		{"Category", s.ByCategory},
		{"Status", s.ByStatus},
		{"Project", s.ByProject},
	}
	for _, g := range groups {
		for _, k := range sortedKeys(g.m) {
			rows = append(rows, []any{g.name, k, g.m[k].String()})
		}
	}
	currencies := make(map[string]core.Money, len(s.ByCurrency))
	for c, m := range s.ByCurrency {
		currencies[string(c)] = m
	}
	for _, k := range sortedKeys(currencies) {
		rows = append(rows, []any{"Currency", k, currencies[k].String()})
	}
	return rows
}

func sortedKeys(m map[string]core.Money) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

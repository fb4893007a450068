package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"billbook/internal/core"
)

var (
	expenseHeader   = []string{"id", "date", "amount", "currency", "category", "description", "vendor", "status", "project_id", "billable", "receipts"}
	timeEntryHeader = []string{"id", "date", "start", "stop", "hours", "project_id", "description", "billable", "invoice_id"}
	invoiceHeader   = []string{"id", "number", "client_id", "issue_date", "due_date", "currency", "total", "paid", "outstanding", "status", "payment_status"}
)

// WriteExpensesCSV writes one header row and one row per expense.
func WriteExpensesCSV(w io.Writer, expenses []core.Expense) error {
	rows := make([][]string, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, []string{
			e.ID,
			e.Date.String(),
			e.Amount.String(),
			string(e.Currency),
			e.Category,
			e.Description,
			e.Vendor,
			string(e.Status),
			e.ProjectID,
			strconv.FormatBool(e.IsBillable),
			strconv.Itoa(len(e.Receipts)),
		})
	}
	return writeCSV(w, expenseHeader, rows)
}

// WriteTimeEntriesCSV writes hours with two decimals; clock fields are blank
// when the entry was logged as hours only.
func WriteTimeEntriesCSV(w io.Writer, entries []core.TimeEntry) error {
	rows := make([][]string, 0, len(entries))
	for _, te := range entries {
		rows = append(rows, []string{
			te.ID,
			te.Date.String(),
			clockString(te.StartTime),
			clockString(te.StopTime),
			te.Hours.StringFixed(2),
			te.ProjectID,
			te.Description,
			strconv.FormatBool(te.IsBillable),
			te.InvoiceID,
		})
	}
	return writeCSV(w, timeEntryHeader, rows)
}

func WriteInvoicesCSV(w io.Writer, invoices []core.Invoice) error {
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			inv.ID,
			inv.Number,
			inv.ClientID,
			inv.IssueDate.String(),
			inv.DueDate.String(),
			string(inv.Currency),
			inv.TotalAmount.String(),
			inv.PaidAmount.String(),
			inv.Outstanding().String(),
			string(inv.Status),
			string(inv.PaymentStatus),
		})
	}
	return writeCSV(w, invoiceHeader, rows)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		for i := range row {
			row[i] = sanitizeCell(row[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// sanitizeCell prefixes values a spreadsheet would evaluate as a formula.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	if strings.ContainsRune("=+@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func clockString(c *core.ClockTime) string {
	if c == nil {
		return ""
	}
	return c.String()
}

package sheets

import (
	"context"
)

// Tab names one kind of exported record. The concrete sheet title is
// "<year> <prefix> <tab>".
type Tab string

const (
	TabExpenses Tab = "Expenses"
	TabTime     Tab = "Time"
	TabInvoices Tab = "Invoices"
	TabSummary  Tab = "Summary"
)

// Ports for outbound adapters.
type (
	// RowWriter appends rows to the yearly sheet of a tab and returns a
	// reference to the written range.
	RowWriter interface {
		AppendRows(ctx context.Context, tab Tab, year int, rows [][]any) (ref string, err error)
	}

	// SheetReplacer overwrites a whole sheet. Used for summaries that are
	// recomputed rather than appended.
	SheetReplacer interface {
		ReplaceRows(ctx context.Context, tab Tab, year int, rows [][]any) error
	}
)

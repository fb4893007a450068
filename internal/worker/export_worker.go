package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"billbook/internal/core"
	"billbook/internal/log"
	"billbook/internal/report"
	"billbook/internal/sheets"
)

// Ledger is the read side of the persisted collections plus the export
// bookkeeping. Both storage backends implement it.
type Ledger interface {
	Load(ctx context.Context, key string) ([]byte, error)
	IsExported(ctx context.Context, collection, id string) (bool, error)
	MarkExported(ctx context.Context, collection, id string) error
}

// exportable are the collections that are mirrored row by row.
var exportable = []string{core.CollectionExpenses, core.CollectionTime, core.CollectionInvoices}

type exportRecord struct {
	id   string
	year int
	row  []any
}

// ExportWorker mirrors ledger records into the spreadsheet. Sheets are an
// append-only log: a record is written once, on its first change event, and
// later updates or deletions are not replayed.
type ExportWorker struct {
	ledger  Ledger
	rows    sheets.RowWriter
	summary sheets.SheetReplacer
	logger  *log.Logger
}

// NewExportWorker wires the worker. summary may be nil to disable the
// yearly summary sheet.
func NewExportWorker(ledger Ledger, rows sheets.RowWriter, summary sheets.SheetReplacer, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		ledger:  ledger,
		rows:    rows,
		summary: summary,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange processes one change notification.
func (w *ExportWorker) HandleChange(ctx context.Context, ev core.ChangeEvent) error {
	tab, ok := sheets.TabFor(ev.Collection)
	if !ok || ev.Op == core.OpDeleted || ev.ID == "" {
		w.logger.DebugContext(ctx, "Skipping change event",
			log.FieldCollection, ev.Collection,
			log.FieldID, ev.ID,
			"op", ev.Op)
		return nil
	}

	recs, err := w.records(ctx, ev.Collection)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.id != ev.ID {
			continue
		}
		done, err := w.ledger.IsExported(ctx, ev.Collection, rec.id)
		if err != nil {
			return fmt.Errorf("check export state: %w", err)
		}
		if done {
			return nil
		}
		return w.append(ctx, ev.Collection, tab, rec.year, []exportRecord{rec})
	}

	// deleted before the worker got to it
	w.logger.InfoContext(ctx, "Changed record no longer exists",
		log.FieldCollection, ev.Collection,
		log.FieldID, ev.ID)
	return nil
}

// ExportPending writes every record that has not been exported yet. It
// recovers from lost messages and worker downtime, and runs at startup.
func (w *ExportWorker) ExportPending(ctx context.Context) (int, error) {
	total := 0
	for _, collection := range exportable {
		tab, _ := sheets.TabFor(collection)
		recs, err := w.records(ctx, collection)
		if err != nil {
			return total, err
		}

		byYear := map[int][]exportRecord{}
		for _, rec := range recs {
			done, err := w.ledger.IsExported(ctx, collection, rec.id)
			if err != nil {
				return total, fmt.Errorf("check export state: %w", err)
			}
			if !done {
				byYear[rec.year] = append(byYear[rec.year], rec)
			}
		}

		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			if err := w.append(ctx, collection, tab, y, byYear[y]); err != nil {
				return total, err
			}
			total += len(byYear[y])
		}
	}

	if total > 0 {
		w.logger.InfoContext(ctx, "Exported pending records", log.FieldRows, total)
	}
	return total, nil
}

// RefreshSummary recomputes the expense summary sheet for a year.
func (w *ExportWorker) RefreshSummary(ctx context.Context, year int) error {
	if w.summary == nil {
		return nil
	}
	expenses, err := decode[core.Expense](ctx, w.ledger, core.CollectionExpenses)
	if err != nil {
		return err
	}
	projects, err := decode[core.Project](ctx, w.ledger, core.CollectionProjects)
	if err != nil {
		return err
	}
	index := make(map[string]core.Project, len(projects))
	for _, p := range projects {
		index[p.ID] = p
	}

	summary := report.Aggregate(report.FromExpenses(expenses, index), report.Filter{
		StartDate: core.NewDate(year, 1, 1),
		EndDate:   core.NewDate(year, 12, 31),
	})
	if err := w.summary.ReplaceRows(ctx, sheets.TabSummary, year, sheets.SummaryRows(summary)); err != nil {
		return &core.ExternalServiceError{Service: "sheets", Op: "replace summary", Err: err}
	}

	w.logger.InfoContext(ctx, "Refreshed expense summary",
		"year", year,
		log.FieldAmount, summary.TotalAmount.String())
	return nil
}

func (w *ExportWorker) append(ctx context.Context, collection string, tab sheets.Tab, year int, recs []exportRecord) error {
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = rec.row
	}
	ref, err := w.rows.AppendRows(ctx, tab, year, rows)
	if err != nil {
		return &core.ExternalServiceError{Service: "sheets", Op: "append " + string(tab), Err: err}
	}

	for _, rec := range recs {
		// the rows are written; a failed mark only risks a duplicate later
		if err := w.ledger.MarkExported(ctx, collection, rec.id); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mark record as exported",
				log.FieldCollection, collection,
				log.FieldID, rec.id,
				log.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Exported records",
		log.FieldCollection, collection,
		log.FieldSheet, ref,
		log.FieldRows, len(rows))
	return nil
}

func (w *ExportWorker) records(ctx context.Context, collection string) ([]exportRecord, error) {
	var out []exportRecord
	switch collection {
	case core.CollectionExpenses:
		items, err := decode[core.Expense](ctx, w.ledger, collection)
		if err != nil {
			return nil, err
		}
		for _, e := range items {
			out = append(out, exportRecord{id: e.ID, year: e.Date.Year(), row: sheets.ExpenseRow(e)})
		}
	case core.CollectionTime:
		items, err := decode[core.TimeEntry](ctx, w.ledger, collection)
		if err != nil {
			return nil, err
		}
		for _, te := range items {
			out = append(out, exportRecord{id: te.ID, year: te.Date.Year(), row: sheets.TimeEntryRow(te)})
		}
	case core.CollectionInvoices:
		items, err := decode[core.Invoice](ctx, w.ledger, collection)
		if err != nil {
			return nil, err
		}
		for _, inv := range items {
			out = append(out, exportRecord{id: inv.ID, year: inv.IssueDate.Year(), row: sheets.InvoiceRow(inv)})
		}
	default:
		return nil, fmt.Errorf("collection %q is not exported", collection)
	}
	return out, nil
}

func decode[T any](ctx context.Context, l Ledger, key string) ([]T, error) {
	b, err := l.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"billbook/internal/core"
	"billbook/internal/report"
)

// reportKey ties a cached report to the ledger state and the day it was
// computed on, since payment status depends on today's date.
func (s *Server) reportKey(kind string, f report.Filter, extra string) string {
	return fmt.Sprintf("%s|%s|%s|rev=%d|day=%s", kind, f.Key(), extra, s.ledger.Revision(), s.ledger.Today())
}

// cachedReport answers from the report cache or computes, encodes and
// stores the result. Errors are not cached.
func (s *Server) cachedReport(w http.ResponseWriter, r *http.Request, op, key string, compute func() (any, error)) {
	payload, err := s.reports.GetOrCompute(key, func() ([]byte, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

// handleExpenseReport aggregates expenses. With convertTo every expense is
// converted first and a missing rate fails the whole report.
func (s *Server) handleExpenseReport(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "report_expenses", err)
		return
	}
	to, err := ParseCurrencyParam(r.URL.Query(), "convertTo")
	if err != nil {
		s.writeError(w, r, "report_expenses", err)
		return
	}

	s.cachedReport(w, r, "report_expenses", s.reportKey("expenses", f, "to="+string(to)), func() (any, error) {
		records := report.FromExpenses(s.ledger.Expenses(), s.ledger.ProjectIndex())
		return report.AggregateWithOptions(records, f, report.Options{ConvertTo: to, Rates: s.ledger.RateTable()})
	})
}

// timeReport pairs the hour totals with their valuation at project rates.
type timeReport struct {
	report.TimeSummary
	Value report.Summary `json:"value"`
}

func (s *Server) handleTimeReport(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "report_time", err)
		return
	}
	to, err := ParseCurrencyParam(r.URL.Query(), "convertTo")
	if err != nil {
		s.writeError(w, r, "report_time", err)
		return
	}

	s.cachedReport(w, r, "report_time", s.reportKey("time", f, "to="+string(to)), func() (any, error) {
		projects := s.ledger.ProjectIndex()
		entries := s.ledger.TimeEntries()
		value, err := report.AggregateWithOptions(report.FromTimeEntries(entries, projects), f,
			report.Options{ConvertTo: to, Rates: s.ledger.RateTable()})
		if err != nil {
			return nil, err
		}
		return timeReport{TimeSummary: report.SummarizeTime(entries, projects, f), Value: value}, nil
	})
}

// revenueReport keeps per-currency positions next to the status breakdown.
type revenueReport struct {
	report.RevenueSummary
	ByPaymentStatus report.Summary `json:"byPaymentStatus"`
}

func (s *Server) handleRevenueReport(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "report_revenue", err)
		return
	}
	to, err := ParseCurrencyParam(r.URL.Query(), "convertTo")
	if err != nil {
		s.writeError(w, r, "report_revenue", err)
		return
	}

	s.cachedReport(w, r, "report_revenue", s.reportKey("revenue", f, "to="+string(to)), func() (any, error) {
		var invoices []core.Invoice
		for _, inv := range s.ledger.Invoices() {
			if report.MatchInvoice(f, inv) {
				invoices = append(invoices, inv)
			}
		}
		// Records carry only the first line's project, so the project
		// constraint is applied above.
		rest := f
		rest.ProjectID = ""
		byStatus, err := report.AggregateWithOptions(report.FromInvoices(invoices), rest,
			report.Options{ConvertTo: to, Rates: s.ledger.RateTable()})
		if err != nil {
			return nil, err
		}
		return revenueReport{RevenueSummary: report.SummarizeRevenue(invoices, f), ByPaymentStatus: byStatus}, nil
	})
}

// handleExport writes one collection as CSV. The file name is
// <collection>.csv and the report filter narrows rows by date and project.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	collection, ok := strings.CutSuffix(file, ".csv")
	if !ok {
		s.writeError(w, r, "export", core.ErrNotFound)
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "export", err)
		return
	}

	projects := s.ledger.ProjectIndex()
	var buf bytes.Buffer
	switch collection {
	case core.CollectionExpenses:
		var rows []core.Expense
		for _, e := range s.ledger.Expenses() {
			if f.Match(report.Record{Date: e.Date, ProjectID: e.ProjectID, ClientID: projects[e.ProjectID].ClientID}) {
				rows = append(rows, e)
			}
		}
		err = report.WriteExpensesCSV(&buf, rows)
	case core.CollectionTime:
		var rows []core.TimeEntry
		for _, te := range s.ledger.TimeEntries() {
			if f.Match(report.Record{Date: te.Date, ProjectID: te.ProjectID, ClientID: projects[te.ProjectID].ClientID}) {
				rows = append(rows, te)
			}
		}
		err = report.WriteTimeEntriesCSV(&buf, rows)
	case core.CollectionInvoices:
		var rows []core.Invoice
		for _, inv := range s.ledger.Invoices() {
			if report.MatchInvoice(f, inv) {
				rows = append(rows, inv)
			}
		}
		err = report.WriteInvoicesCSV(&buf, rows)
	default:
		s.writeError(w, r, "export", fmt.Errorf("export %s: %w", collection, core.ErrNotFound))
		return
	}
	if err != nil {
		s.writeError(w, r, "export", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"billbook/internal/core"
	"billbook/internal/currency"
	"billbook/internal/invoicing"
)

// handleListInvoices supports clientId and paymentStatus filters.
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("clientId")
	payment := core.PaymentStatus(q.Get("paymentStatus"))

	invoices := s.ledger.Invoices()
	out := make([]core.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if clientID != "" && inv.ClientID != clientID {
			continue
		}
		if payment != "" && inv.PaymentStatus != payment {
			continue
		}
		out = append(out, inv)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.ledger.Invoice(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get_invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleCreateInvoice bills the listed time entries, or creates a manual
// invoice when the draft names an amount and no entries.
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var d invoicing.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		s.writeError(w, r, "create_invoice", err)
		return
	}
	d.Notes = sanitizeInput(d.Notes)

	var (
		inv core.Invoice
		err error
	)
	if d.Manual() {
		inv, err = s.ledger.CreateManualInvoice(r.Context(), d)
	} else {
		inv, err = s.ledger.CreateInvoice(r.Context(), d)
	}
	if err != nil {
		s.writeError(w, r, "create_invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var p core.Payment
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(w, r, "record_payment", err)
		return
	}
	p.Method = sanitizeInput(p.Method)
	p.Note = sanitizeInput(p.Note)
	inv, err := s.ledger.RecordPayment(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		s.writeError(w, r, "record_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.ledger.CancelInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "cancel_invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleInvoiceDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ledger.InvoiceDocument(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "invoice_document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Rates())
}

// handleSetRates replaces the whole table.
func (s *Server) handleSetRates(w http.ResponseWriter, r *http.Request) {
	var rates []core.ExchangeRate
	if err := decodeJSON(w, r, &rates); err != nil {
		s.writeError(w, r, "set_rates", err)
		return
	}
	saved, err := s.ledger.SetRates(r.Context(), rates)
	if err != nil {
		s.writeError(w, r, "set_rates", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type convertRequest struct {
	Amount core.Money    `json:"amount"`
	From   core.Currency `json:"from"`
	To     core.Currency `json:"to"`
	// Rates overrides the stored table for this call only.
	Rates []core.ExchangeRate `json:"rates,omitempty"`
}

type convertResponse struct {
	Amount   core.Money      `json:"amount"`
	Currency core.Currency   `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "convert", err)
		return
	}
	from := core.NormalizeCurrency(string(req.From))
	to := core.NormalizeCurrency(string(req.To))
	if err := from.Validate(); err != nil {
		s.writeError(w, r, "convert", core.NewValidationError("from", "invalid currency %q", req.From))
		return
	}
	if err := to.Validate(); err != nil {
		s.writeError(w, r, "convert", core.NewValidationError("to", "invalid currency %q", req.To))
		return
	}

	table := s.ledger.RateTable()
	if req.Rates != nil {
		table = currency.NewRateTable(req.Rates)
	}
	rate, err := table.Rate(from, to)
	if err != nil {
		s.writeError(w, r, "convert", err)
		return
	}
	converted, err := currency.ConvertMoney(req.Amount, from, to, table)
	if err != nil {
		s.writeError(w, r, "convert", err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{Amount: converted, Currency: to, Rate: rate})
}

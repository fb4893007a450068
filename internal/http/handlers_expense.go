package http

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"billbook/internal/core"
	"billbook/internal/log"
	"billbook/internal/receipts"
)

// handleListExpenses filters on the report filter and an optional status.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "list_expenses", err)
		return
	}
	status := core.ExpenseStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.writeError(w, r, "list_expenses", core.NewValidationError("status", "unknown expense status %s", status))
		return
	}

	projects := s.ledger.ProjectIndex()
	expenses := s.ledger.Expenses()
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if status != "" && e.Status != status {
			continue
		}
		if f.ProjectID != "" && e.ProjectID != f.ProjectID {
			continue
		}
		if f.ClientID != "" && projects[e.ProjectID].ClientID != f.ClientID {
			continue
		}
		if !e.Date.Within(f.StartDate, f.EndDate) {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.Expense(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get_expense", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var e core.Expense
	if err := decodeJSON(w, r, &e); err != nil {
		s.writeError(w, r, "add_expense", err)
		return
	}
	e.Description = sanitizeInput(e.Description)
	e.Category = sanitizeInput(e.Category)
	e.Vendor = sanitizeInput(e.Vendor)
	if e.Date.IsZero() {
		e.Date = s.ledger.Today()
	}
	created, err := s.ledger.AddExpense(r.Context(), e)
	if err != nil {
		s.writeError(w, r, "add_expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type statusRequest struct {
	Status core.ExpenseStatus `json:"status"`
}

func (s *Server) handleSetExpenseStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "set_expense_status", err)
		return
	}
	e, err := s.ledger.SetExpenseStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeError(w, r, "set_expense_status", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleUploadReceipt takes a multipart "file" field. With an extractor
// configured the file is read first; if that fails the expense is left as it
// was and the answer is 502.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.ledger.Expense(id); err != nil {
		s.writeError(w, r, "attach_receipt", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, receipts.MaxFileSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, "attach_receipt", core.NewValidationError("file", "file larger than %d bytes", receipts.MaxFileSize))
			return
		}
		s.writeError(w, r, "attach_receipt", badRequest("invalid multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, "attach_receipt", core.NewValidationError("file", "a receipt file is required"))
		return
	}
	defer file.Close()
	if hdr.Size > receipts.MaxFileSize {
		s.writeError(w, r, "attach_receipt", core.NewValidationError("file", "file larger than %d bytes", receipts.MaxFileSize))
		return
	}

	receipt := core.Receipt{
		FileName:    filepath.Base(sanitizeInput(hdr.Filename)),
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
	}
	if s.extractor != nil {
		fields, err := s.extractor.Extract(r.Context(), receipt.FileName, receipt.ContentType, file)
		if err != nil {
			s.writeError(w, r, "extract_receipt", err)
			return
		}
		receipt.Extracted = &fields
	}

	e, err := s.ledger.AttachReceipt(r.Context(), id, receipt)
	if err != nil {
		s.writeError(w, r, "attach_receipt", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Receipt attached",
		log.FieldID, id, "file", receipt.FileName, "extracted", receipt.Extracted != nil)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.RecurringExpenses())
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var re core.RecurringExpense
	if err := decodeJSON(w, r, &re); err != nil {
		s.writeError(w, r, "add_recurring", err)
		return
	}
	re.Description = sanitizeInput(re.Description)
	re.Category = sanitizeInput(re.Category)
	created, err := s.ledger.AddRecurringExpense(r.Context(), re)
	if err != nil {
		s.writeError(w, r, "add_recurring", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

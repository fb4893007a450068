package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billbook/internal/core"
	storagemem "billbook/internal/storage/memory"
	"billbook/internal/store"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	n := 0
	ledger := store.New(storagemem.New(),
		store.WithClock(func() time.Time { return testNow }),
		store.WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	srv := NewServer(":0", ledger, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ledger
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type fixture struct {
	client  core.Client
	project core.Project
}

func seed(t *testing.T, srv *Server) fixture {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/clients", map[string]any{"name": "Acme", "currency": "eur"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	client := decodeBody[core.Client](t, rr)

	rr = do(t, srv, http.MethodPost, "/api/projects", map[string]any{
		"clientId": client.ID, "name": "Website", "hourlyRate": "90.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return fixture{client: client, project: decodeBody[core.Project](t, rr)}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealthAndReadiness(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	}

	srv, _ = newTestServer(t, WithPinger(failingPinger{}))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/readyz", nil).Code)
}

func TestReconcileEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/time/reconcile", `{"startTime":"09:00","stopTime":"11:20"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "2.33", res["hours"])
	assert.Equal(t, "hours", res["derived"])

	rr = do(t, srv, http.MethodPost, "/api/time/reconcile", `{"startTime":"09:00","stopTime":"17:00","hours":"5"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, "hours", body["field"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, details["consistent"])

	rr = do(t, srv, http.MethodPost, "/api/time/reconcile", `{"startTime":"23:00","stopTime":"07:00","overnight":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "8", decodeBody[map[string]any](t, rr)["hours"])
}

func TestBillingFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	fx := seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/time-entries", map[string]any{
		"date": "2025-06-02", "startTime": "09:00", "stopTime": "11:20",
		"projectId": fx.project.ID, "description": "Build pages", "isBillable": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	entry := decodeBody[core.TimeEntry](t, rr)
	assert.True(t, entry.Hours.Equal(decimal.RequireFromString("2.33")))

	rr = do(t, srv, http.MethodGet, "/api/time-entries?unbilled=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]core.TimeEntry](t, rr), 1)

	rr = do(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"clientId": fx.client.ID, "issueDate": "2025-06-10", "timeEntryIds": []string{entry.ID},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inv := decodeBody[core.Invoice](t, rr)
	assert.Equal(t, "INV-2025-0001", inv.Number)
	assert.Equal(t, int64(20970), inv.TotalAmount.Cents)
	assert.Equal(t, core.NewDate(2025, 7, 10), inv.DueDate)

	rr = do(t, srv, http.MethodGet, "/api/time-entries?unbilled=true", nil)
	assert.Empty(t, decodeBody[[]core.TimeEntry](t, rr))

	rr = do(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"clientId": fx.client.ID, "timeEntryIds": []string{entry.ID},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "entries cannot be billed twice")

	rr = do(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": "100.00"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, core.PaymentPartial, decodeBody[core.Invoice](t, rr).PaymentStatus)

	rr = do(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": "500.00"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "overpayment is rejected")

	rr = do(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "paid invoices cannot be cancelled")

	rr = do(t, srv, http.MethodGet, "/api/invoices/"+inv.ID+"/document", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	doc := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "209.70", doc["total"])
	assert.Equal(t, "109.70", doc["outstanding"])

	rr = do(t, srv, http.MethodGet, "/api/reports/revenue", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rev := decodeBody[struct {
		ByCurrency map[string]map[string]any `json:"byCurrency"`
	}](t, rr)
	assert.Equal(t, "109.70", rev.ByCurrency["EUR"]["outstanding"])

	rr = do(t, srv, http.MethodGet, "/api/export/invoices.csv", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "INV-2025-0001")

	// The snapshot total survives edits to the billed entry.
	rr = do(t, srv, http.MethodPut, "/api/time-entries/"+entry.ID, map[string]any{
		"date": "2025-06-02", "hours": "8", "projectId": fx.project.ID, "isBillable": true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, srv, http.MethodGet, "/api/invoices/"+inv.ID, nil)
	assert.Equal(t, int64(20970), decodeBody[core.Invoice](t, rr).TotalAmount.Cents)
}

func TestManualInvoice(t *testing.T) {
	srv, _ := newTestServer(t)
	fx := seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"clientId": fx.client.ID, "amount": "1500.00", "currency": "usd",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inv := decodeBody[core.Invoice](t, rr)
	assert.True(t, inv.Manual)
	assert.Equal(t, core.Currency("USD"), inv.Currency)

	rr = do(t, srv, http.MethodPost, "/api/invoices/"+inv.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.InvoiceCancelled, decodeBody[core.Invoice](t, rr).Status)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown entry", http.MethodGet, "/api/time-entries/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown invoice document", http.MethodGet, "/api/invoices/nope/document", nil, http.StatusNotFound, "not_found"},
		{"unknown export", http.MethodGet, "/api/export/clients.csv", nil, http.StatusNotFound, "not_found"},
		{"malformed json", http.MethodPost, "/api/clients", `{"name":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodPost, "/api/clients", `{"nom":"Acme"}`, http.StatusBadRequest, "bad_request"},
		{"empty client name", http.MethodPost, "/api/clients", `{"name":"  "}`, http.StatusUnprocessableEntity, "validation"},
		{"bad filter date", http.MethodGet, "/api/reports/expenses?startDate=06/01/2025", nil, http.StatusUnprocessableEntity, "validation"},
		{"unknown project", http.MethodPost, "/api/time-entries", map[string]any{"date": "2025-06-01", "hours": "1", "projectId": "ghost"}, http.StatusUnprocessableEntity, "validation"},
		{"bad expense status", http.MethodGet, "/api/expenses?status=Lost", nil, http.StatusUnprocessableEntity, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decodeBody[map[string]any](t, rr)["error"])
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestConvert(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, http.MethodPut, "/api/rates", []map[string]any{{"from": "usd", "to": "eur", "rate": "0.9"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	tests := []struct {
		name   string
		body   string
		status int
		amount string
	}{
		{"direct", `{"amount":"100.00","from":"USD","to":"EUR"}`, http.StatusOK, "90.00"},
		{"inverse", `{"amount":"90.00","from":"EUR","to":"USD"}`, http.StatusOK, "100.00"},
		{"identity", `{"amount":"100.00","from":"USD","to":"usd"}`, http.StatusOK, "100.00"},
		{"missing pair", `{"amount":"100.00","from":"USD","to":"XYZ"}`, http.StatusUnprocessableEntity, ""},
		{"inline rates", `{"amount":"10.00","from":"GBP","to":"EUR","rates":[{"from":"GBP","to":"EUR","rate":"1.2"}]}`, http.StatusOK, "12.00"},
		{"bad currency", `{"amount":"1.00","from":"US","to":"EUR"}`, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/convert", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.amount != "" {
				assert.Equal(t, tt.amount, decodeBody[map[string]any](t, rr)["amount"])
			}
		})
	}

	rr = do(t, srv, http.MethodPost, "/api/convert", `{"amount":"100.00","from":"USD","to":"XYZ"}`)
	assert.Equal(t, "missing_rate", decodeBody[map[string]any](t, rr)["error"])
}

func TestExpenseReportIsCachedPerRevision(t *testing.T) {
	srv, ledger := newTestServer(t)
	ctx := context.Background()

	add := func(cents int64, cur, category string) {
		_, err := ledger.AddExpense(ctx, core.Expense{
			Date: core.NewDate(2025, 6, 1), Amount: core.Money{Cents: cents}, Currency: core.Currency(cur), Category: category,
		})
		require.NoError(t, err)
	}
	add(1000, "EUR", "travel")
	add(500, "EUR", "office")

	rr := do(t, srv, http.MethodGet, "/api/reports/expenses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "15.00", first["totalAmount"])
	assert.Equal(t, "5.00", first["byCategory"].(map[string]any)["office"])

	do(t, srv, http.MethodGet, "/api/reports/expenses", nil)
	assert.Equal(t, int64(1), srv.reports.Stats().Hits)

	add(250, "USD", "travel")
	rr = do(t, srv, http.MethodGet, "/api/reports/expenses", nil)
	second := decodeBody[map[string]any](t, rr)
	assert.Equal(t, float64(3), second["count"])
	assert.Len(t, second["byCurrency"], 2)

	rr = do(t, srv, http.MethodGet, "/api/reports/expenses?convertTo=EUR", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "no USD rate")
	assert.Equal(t, "missing_rate", decodeBody[map[string]any](t, rr)["error"])
}

type fakeExtractor struct {
	fields core.ReceiptFields
	err    error
	got    string
}

func (f *fakeExtractor) Extract(_ context.Context, fileName, _ string, file io.Reader) (core.ReceiptFields, error) {
	b, _ := io.ReadAll(file)
	f.got = fileName + ":" + string(b)
	return f.fields, f.err
}

func uploadReceipt(t *testing.T, srv *Server, expenseID, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/"+expenseID+"/receipts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestUploadReceipt(t *testing.T) {
	ext := &fakeExtractor{fields: core.ReceiptFields{Vendor: "Cafe", Amount: core.Money{Cents: 1250}, Currency: "EUR"}}
	srv, ledger := newTestServer(t, WithExtractor(ext))

	rr := do(t, srv, http.MethodPost, "/api/expenses", map[string]any{"amount": "12.50", "category": "meals", "description": "Lunch"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	exp := decodeBody[core.Expense](t, rr)
	assert.Equal(t, core.ExpenseDraft, exp.Status)
	assert.Equal(t, core.NewDate(2025, 6, 15), exp.Date, "date defaults to today")

	rr = uploadReceipt(t, srv, exp.ID, "lunch.jpg", "JPEG")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "lunch.jpg:JPEG", ext.got)
	updated := decodeBody[core.Expense](t, rr)
	require.Len(t, updated.Receipts, 1)
	require.NotNil(t, updated.Receipts[0].Extracted)
	assert.Equal(t, "Cafe", updated.Receipts[0].Extracted.Vendor)
	assert.Equal(t, int64(4), updated.Receipts[0].Size)

	ext.err = &core.ExternalServiceError{Service: "ocr", Op: "extract", Err: errors.New("status 503")}
	rr = uploadReceipt(t, srv, exp.ID, "again.jpg", "JPEG")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	current, err := ledger.Expense(exp.ID)
	require.NoError(t, err)
	assert.Len(t, current.Receipts, 1, "failed extraction leaves the expense untouched")

	assert.Equal(t, http.StatusNotFound, uploadReceipt(t, srv, "ghost", "x.jpg", "x").Code)

	rr = do(t, srv, http.MethodPut, "/api/expenses/"+exp.ID+"/status", map[string]any{"status": "Submitted"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.ExpenseSubmitted, decodeBody[core.Expense](t, rr).Status)
}

func TestUploadReceiptWithoutExtractor(t *testing.T) {
	srv, ledger := newTestServer(t)
	exp, err := ledger.AddExpense(context.Background(), core.Expense{
		Date: core.NewDate(2025, 6, 3), Amount: core.Money{Cents: 900}, Category: "books",
	})
	require.NoError(t, err)

	rr := uploadReceipt(t, srv, exp.ID, "book.pdf", "%PDF")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	updated := decodeBody[core.Expense](t, rr)
	require.Len(t, updated.Receipts, 1)
	assert.Nil(t, updated.Receipts[0].Extracted)
}

func TestMutationsAreRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, WithRateLimit(2))

	for i := 0; i < 2; i++ {
		rr := do(t, srv, http.MethodPost, "/api/clients", map[string]any{"name": fmt.Sprintf("Client %d", i)})
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/clients", map[string]any{"name": "One too many"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/clients", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]core.Client](t, rr), 2)
}

func TestDeleteTimeEntry(t *testing.T) {
	srv, _ := newTestServer(t)
	fx := seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/time-entries", map[string]any{
		"date": "2025-06-03", "startTime": "13:00", "hours": "1.5", "projectId": fx.project.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	te := decodeBody[core.TimeEntry](t, rr)
	require.NotNil(t, te.StopTime)
	assert.Equal(t, "14:30", te.StopTime.String())

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/time-entries/"+te.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/time-entries/"+te.ID, nil).Code)
}

func TestExportInvoicesByAnyBilledProject(t *testing.T) {
	srv, _ := newTestServer(t)
	fx := seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/projects", map[string]any{
		"clientId": fx.client.ID, "name": "Support", "hourlyRate": "60.00",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	support := decodeBody[core.Project](t, rr)

	var ids []string
	for _, projectID := range []string{fx.project.ID, support.ID} {
		rr = do(t, srv, http.MethodPost, "/api/time-entries", map[string]any{
			"date": "2025-06-02", "hours": "1", "projectId": projectID, "isBillable": true,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		ids = append(ids, decodeBody[core.TimeEntry](t, rr).ID)
	}
	rr = do(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"clientId": fx.client.ID, "issueDate": "2025-06-10", "timeEntryIds": ids,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inv := decodeBody[core.Invoice](t, rr)

	rr = do(t, srv, http.MethodGet, "/api/export/invoices.csv?projectId="+support.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), inv.Number)

	rr = do(t, srv, http.MethodGet, "/api/reports/revenue?projectId="+support.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rev := decodeBody[struct {
		ByCurrency map[string]map[string]any `json:"byCurrency"`
	}](t, rr)
	assert.Equal(t, "150.00", rev.ByCurrency["EUR"]["invoiced"])
}

func TestTimeEntryAcrossMidnight(t *testing.T) {
	srv, _ := newTestServer(t)
	fx := seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/time/reconcile", `{"startTime":"23:00","stopTime":"07:00","hours":"8"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[map[string]any](t, rr)
	assert.Equal(t, true, res["consistent"])
	assert.Equal(t, true, res["overnight"])

	rr = do(t, srv, http.MethodPost, "/api/time-entries", map[string]any{
		"date": "2025-06-02", "startTime": "23:00", "stopTime": "07:00", "hours": "8", "projectId": fx.project.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, decodeBody[core.TimeEntry](t, rr).Overnight)
}

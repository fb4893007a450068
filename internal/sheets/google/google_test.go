package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "billbook/internal/sheets"
)

// fakeSheets records the calls the client makes to the Sheets REST API.
type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	calls    []string
	appended [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/v4/spreadsheets/sheet-id"):
		f.calls = append(f.calls, "get")
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "addSheet")
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.titles = append(f.titles, req.Requests[0].AddSheet.Properties.Title)
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		_, _ = io.WriteString(w, `{"updates":{"updatedRange":"'2025 Ledger Expenses'!A2:J2"}}`)
	case strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear")
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update")
		_, _ = io.WriteString(w, `{}`)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return New(svc, "sheet-id", "Ledger")
}

func TestAppendRowsCreatesMissingSheetOnce(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ref, err := c.AppendRows(ctx, ports.TabExpenses, 2025, [][]any{{"e1", "2025-01-02", "12.34"}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "'2025 Ledger Expenses'!A2:J2" {
		t.Errorf("unexpected ref %q", ref)
	}
	if _, err := c.AppendRows(ctx, ports.TabExpenses, 2025, [][]any{{"e2"}}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	want := []string{"get", "addSheet", "update", "append", "append"}
	if strings.Join(fake.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", fake.calls, want)
	}
	if len(fake.titles) != 1 || fake.titles[0] != "2025 Ledger Expenses" {
		t.Errorf("unexpected sheets: %v", fake.titles)
	}
	if len(fake.appended) != 2 || fake.appended[0][2] != "12.34" {
		t.Errorf("unexpected appended rows: %v", fake.appended)
	}
}

func TestAppendRowsUsesExistingSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"2025 Ledger Time"}}
	c := newTestClient(t, fake)

	if _, err := c.AppendRows(context.Background(), ports.TabTime, 2025, [][]any{{"t1"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if strings.Join(fake.calls, ",") != "get,append" {
		t.Errorf("unexpected calls: %v", fake.calls)
	}
}

func TestReplaceRows(t *testing.T) {
	fake := &fakeSheets{titles: []string{"2025 Ledger Summary"}}
	c := newTestClient(t, fake)

	if err := c.ReplaceRows(context.Background(), ports.TabSummary, 2025, [][]any{{"Total", "", "1.00"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if strings.Join(fake.calls, ",") != "get,clear,update" {
		t.Errorf("unexpected calls: %v", fake.calls)
	}
}

func TestNilServiceFails(t *testing.T) {
	c := &Client{known: map[string]bool{}}
	if _, err := c.AppendRows(context.Background(), ports.TabExpenses, 2025, [][]any{{"x"}}); err == nil {
		t.Fatal("expected error without service")
	}
}

func TestNewFromConfig_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromConfig_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewFromConfig(context.Background(), Config{SpreadsheetID: "id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		prefix string
		tab    ports.Tab
		want   string
	}{
		{"Ledger", ports.TabExpenses, "2025 Ledger Expenses"},
		{"", ports.TabInvoices, "2025 Invoices"},
		{"2024 Archive", ports.TabTime, "2024 Archive Time"},
	}
	for _, tt := range tests {
		c := New(nil, "id", tt.prefix)
		if got := c.SheetName(tt.tab, 2025); got != tt.want {
			t.Errorf("SheetName(%q, %q) = %q, want %q", tt.prefix, tt.tab, got, tt.want)
		}
	}
}

func TestA1QuotesSheetNames(t *testing.T) {
	if got := a1("O'Brien 2025", "A1"); got != "'O''Brien 2025'!A1" {
		t.Errorf("unexpected range %q", got)
	}
}

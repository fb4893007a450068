// Package memory is an in-process sheets writer for tests and for runs
// without a spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"

	"billbook/internal/sheets"
)

type Writer struct {
	mu     sync.Mutex
	sheets map[string][][]any
}

var (
	_ sheets.RowWriter     = (*Writer)(nil)
	_ sheets.SheetReplacer = (*Writer)(nil)
)

func New() *Writer {
	return &Writer{sheets: map[string][][]any{}}
}

// SheetName is "<year> <tab>".
func SheetName(tab sheets.Tab, year int) string {
	return fmt.Sprintf("%d %s", year, tab)
}

// AppendRows stores the rows and returns a synthetic A1 reference.
func (w *Writer) AppendRows(_ context.Context, tab sheets.Tab, year int, rows [][]any) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	name := SheetName(tab, year)
	first := len(w.sheets[name]) + 1
	for _, r := range rows {
		w.sheets[name] = append(w.sheets[name], append([]any(nil), r...))
	}
	return fmt.Sprintf("mem:%s!A%d:A%d", name, first, len(w.sheets[name])), nil
}

func (w *Writer) ReplaceRows(_ context.Context, tab sheets.Tab, year int, rows [][]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	copied := make([][]any, len(rows))
	for i, r := range rows {
		copied[i] = append([]any(nil), r...)
	}
	w.sheets[SheetName(tab, year)] = copied
	return nil
}

// Rows returns a copy of everything written to the sheet.
func (w *Writer) Rows(tab sheets.Tab, year int) [][]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	src := w.sheets[SheetName(tab, year)]
	out := make([][]any, len(src))
	copy(out, src)
	return out
}

package store

import (
	"context"
	"errors"

	"billbook/internal/core"
	"billbook/internal/invoicing"
)

func invoiceID(inv core.Invoice) string { return inv.ID }

// Invoices returns all invoices with payment status evaluated for today.
func (s *Store) Invoices() []core.Invoice {
	s.mu.RLock()
	out := clone(s.invoices)
	s.mu.RUnlock()
	invoicing.Refresh(out, s.Today())
	return out
}

func (s *Store) Invoice(id string) (core.Invoice, error) {
	s.mu.RLock()
	i := indexOf(s.invoices, id, invoiceID)
	if i < 0 {
		s.mu.RUnlock()
		return core.Invoice{}, notFound("invoice", id)
	}
	inv := s.invoices[i]
	s.mu.RUnlock()
	if inv.Status != core.InvoiceCancelled {
		inv.PaymentStatus = invoicing.PaymentStatusAt(inv, s.Today())
	}
	return inv, nil
}

// InvoiceDocument resolves an invoice into its printable form.
func (s *Store) InvoiceDocument(id string) (invoicing.Document, error) {
	inv, err := s.Invoice(id)
	if err != nil {
		return invoicing.Document{}, err
	}
	client, err := s.Client(inv.ClientID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return invoicing.Document{}, err
	}
	if client.ID == "" {
		client = core.Client{ID: inv.ClientID, Name: inv.ClientID}
	}
	return invoicing.NewDocument(inv, client, s.ProjectIndex()), nil
}

// CreateInvoice bills the given time entries. The total is computed now and
// stored; the entries are linked to the invoice so they cannot be billed
// twice. Both the invoices and the time entries are written.
func (s *Store) CreateInvoice(ctx context.Context, d invoicing.Draft) (core.Invoice, error) {
	if d.IssueDate.IsZero() {
		d.IssueDate = s.Today()
	}

	s.mu.Lock()
	if indexOf(s.clients, d.ClientID, clientID) < 0 && d.ClientID != "" {
		s.mu.Unlock()
		return core.Invoice{}, core.NewValidationError("clientId", "unknown client %s", d.ClientID)
	}
	entries := make([]core.TimeEntry, 0, len(d.TimeEntryIDs))
	positions := make([]int, 0, len(d.TimeEntryIDs))
	seen := map[string]bool{}
	for _, id := range d.TimeEntryIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		i := indexOf(s.entries, id, entryID)
		if i < 0 {
			s.mu.Unlock()
			return core.Invoice{}, notFound("time entry", id)
		}
		entries = append(entries, s.entries[i])
		positions = append(positions, i)
	}

	inv, err := invoicing.NewFromEntries(d, entries, s.projectIndexLocked())
	if err != nil {
		s.mu.Unlock()
		return core.Invoice{}, err
	}
	inv.ID = s.newID()
	inv.Number = invoicing.NextNumber(s.invoices, inv.IssueDate.Year())
	s.invoices = append(s.invoices, inv)
	for _, i := range positions {
		s.entries[i].InvoiceID = inv.ID
	}

	err = errors.Join(
		s.save(ctx, core.CollectionInvoices, s.invoices),
		s.save(ctx, core.CollectionTime, s.entries),
	)
	s.mu.Unlock()
	if err != nil {
		return inv, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionInvoices, inv.ID)
	for _, te := range entries {
		s.committed(ctx, core.OpUpdated, core.CollectionTime, te.ID)
	}
	return inv, nil
}

// CreateManualInvoice stores a fixed-amount invoice with no time entries.
func (s *Store) CreateManualInvoice(ctx context.Context, d invoicing.Draft) (core.Invoice, error) {
	if d.IssueDate.IsZero() {
		d.IssueDate = s.Today()
	}

	s.mu.Lock()
	if indexOf(s.clients, d.ClientID, clientID) < 0 && d.ClientID != "" {
		s.mu.Unlock()
		return core.Invoice{}, core.NewValidationError("clientId", "unknown client %s", d.ClientID)
	}
	inv, err := invoicing.NewManual(d)
	if err != nil {
		s.mu.Unlock()
		return core.Invoice{}, err
	}
	inv.ID = s.newID()
	inv.Number = invoicing.NextNumber(s.invoices, inv.IssueDate.Year())
	s.invoices = append(s.invoices, inv)
	err = s.save(ctx, core.CollectionInvoices, s.invoices)
	s.mu.Unlock()
	if err != nil {
		return inv, err
	}
	s.committed(ctx, core.OpCreated, core.CollectionInvoices, inv.ID)
	return inv, nil
}

// RecordPayment adds a payment to an invoice. Only the invoices collection is
// written.
func (s *Store) RecordPayment(ctx context.Context, id string, p core.Payment) (core.Invoice, error) {
	if p.Date.IsZero() {
		p.Date = s.Today()
	}

	s.mu.Lock()
	i := indexOf(s.invoices, id, invoiceID)
	if i < 0 {
		s.mu.Unlock()
		return core.Invoice{}, notFound("invoice", id)
	}
	inv := s.invoices[i]
	inv.Payments = clone(inv.Payments)
	if err := invoicing.ApplyPayment(&inv, p, s.Today()); err != nil {
		s.mu.Unlock()
		return core.Invoice{}, err
	}
	s.invoices[i] = inv
	err := s.save(ctx, core.CollectionInvoices, s.invoices)
	s.mu.Unlock()
	if err != nil {
		return inv, err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionInvoices, id)
	return inv, nil
}

// CancelInvoice voids an unpaid invoice and releases its time entries so
// they can be billed again.
func (s *Store) CancelInvoice(ctx context.Context, id string) (core.Invoice, error) {
	s.mu.Lock()
	i := indexOf(s.invoices, id, invoiceID)
	if i < 0 {
		s.mu.Unlock()
		return core.Invoice{}, notFound("invoice", id)
	}
	inv := s.invoices[i]
	if inv.Status == core.InvoiceCancelled {
		s.mu.Unlock()
		return inv, nil
	}
	if inv.PaidAmount.Cents > 0 {
		s.mu.Unlock()
		return core.Invoice{}, &core.ValidationError{Field: "status", Message: "invoice has payments and cannot be cancelled"}
	}
	inv.Status = core.InvoiceCancelled
	s.invoices[i] = inv

	var released []string
	for j := range s.entries {
		if s.entries[j].InvoiceID == id {
			s.entries[j].InvoiceID = ""
			released = append(released, s.entries[j].ID)
		}
	}
	errs := []error{s.save(ctx, core.CollectionInvoices, s.invoices)}
	if len(released) > 0 {
		errs = append(errs, s.save(ctx, core.CollectionTime, s.entries))
	}
	s.mu.Unlock()
	if err := errors.Join(errs...); err != nil {
		return inv, err
	}
	s.committed(ctx, core.OpUpdated, core.CollectionInvoices, id)
	for _, teID := range released {
		s.committed(ctx, core.OpUpdated, core.CollectionTime, teID)
	}
	return inv, nil
}

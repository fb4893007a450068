package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"billbook/internal/core"
	"billbook/internal/invoicing"
)

type mapPersister struct {
	mu      sync.Mutex
	data    map[string][]byte
	failKey string
	saves   map[string]int
}

func newMapPersister() *mapPersister {
	return &mapPersister{data: map[string][]byte{}, saves: map[string]int{}}
}

func (p *mapPersister) Load(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data[key], nil
}

func (p *mapPersister) Save(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if key == p.failKey {
		return errors.New("disk full")
	}
	p.data[key] = payload
	p.saves[key]++
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ChangeEvent
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, ev core.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type StoreSuite struct {
	suite.Suite
	ctx       context.Context
	persister *mapPersister
	publisher *recordingPublisher
	store     *Store
	seq       int

	client  core.Client
	project core.Project
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.persister = newMapPersister()
	s.publisher = &recordingPublisher{}
	s.seq = 0
	s.store = New(s.persister,
		WithPublisher(s.publisher),
		WithClock(func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }),
		WithIDs(func() string { s.seq++; return fmt.Sprintf("id-%d", s.seq) }),
	)

	var err error
	s.client, err = s.store.AddClient(s.ctx, core.Client{Name: "Acme"})
	s.Require().NoError(err)
	s.project, err = s.store.AddProject(s.ctx, core.Project{
		ClientID:   s.client.ID,
		Name:       "Website",
		HourlyRate: core.Money{Cents: 8000},
		Phases:     []core.Phase{{Name: "Design"}},
	})
	s.Require().NoError(err)
}

func (s *StoreSuite) logHours(day int, hours string) core.TimeEntry {
	te, err := s.store.LogTime(s.ctx, core.TimeEntry{
		Date:        core.NewDate(2025, 6, day),
		Hours:       decimal.RequireFromString(hours),
		ProjectID:   s.project.ID,
		Description: "work",
		IsBillable:  true,
	})
	s.Require().NoError(err)
	return te
}

func (s *StoreSuite) TestDefaultsAreApplied() {
	s.Equal(core.Currency("EUR"), s.client.Currency)
	s.Equal(core.Currency("EUR"), s.project.Currency)
	s.Equal(core.ProjectActive, s.project.Status)
	s.Require().Len(s.project.Phases, 1)
	s.NotEmpty(s.project.Phases[0].ID)
}

func (s *StoreSuite) TestAddProjectUnknownClient() {
	_, err := s.store.AddProject(s.ctx, core.Project{ClientID: "nope", Name: "X", Currency: "EUR"})
	var ve *core.ValidationError
	s.True(errors.As(err, &ve))
}

func (s *StoreSuite) TestLogTimeReconcilesHours() {
	start, _ := core.ParseClock("09:00")
	stop, _ := core.ParseClock("11:20")
	te, err := s.store.LogTime(s.ctx, core.TimeEntry{
		Date: core.NewDate(2025, 6, 2), StartTime: &start, StopTime: &stop,
		ProjectID: s.project.ID, Description: "call",
	})
	s.Require().NoError(err)
	s.True(te.Hours.Equal(decimal.RequireFromString("2.33")))

	hours := decimal.NewFromInt(5)
	_, err = s.store.LogTime(s.ctx, core.TimeEntry{
		Date: core.NewDate(2025, 6, 2), StartTime: &start, StopTime: &stop, Hours: hours,
		ProjectID: s.project.ID,
	})
	var ve *core.ValidationError
	s.True(errors.As(err, &ve))
	s.Len(s.store.TimeEntries(), 1)
}

func (s *StoreSuite) TestLogTimeAcrossMidnight() {
	start, _ := core.ParseClock("23:00")
	stop, _ := core.ParseClock("07:00")
	te, err := s.store.LogTime(s.ctx, core.TimeEntry{
		Date: core.NewDate(2025, 6, 2), StartTime: &start, StopTime: &stop, Hours: decimal.NewFromInt(8),
		ProjectID: s.project.ID, Description: "night deploy",
	})
	s.Require().NoError(err)
	s.True(te.Overnight)
	s.True(te.Hours.Equal(decimal.NewFromInt(8)))

	// Re-submitting the stored entry reconciles the same way.
	updated, err := s.store.UpdateTimeEntry(s.ctx, te.ID, te)
	s.Require().NoError(err)
	s.True(updated.Hours.Equal(decimal.NewFromInt(8)))

	_, err = s.store.LogTime(s.ctx, core.TimeEntry{
		Date: core.NewDate(2025, 6, 2), StartTime: &start, StopTime: &stop,
		ProjectID: s.project.ID,
	})
	var ve *core.ValidationError
	s.True(errors.As(err, &ve), "start and stop alone must not wrap")
	s.Len(s.store.TimeEntries(), 1)
}

func (s *StoreSuite) TestLogTimeRejectsSubMinuteHours() {
	start, _ := core.ParseClock("09:00")
	_, err := s.store.LogTime(s.ctx, core.TimeEntry{
		Date: core.NewDate(2025, 6, 2), StartTime: &start, Hours: decimal.RequireFromString("0.001"),
		ProjectID: s.project.ID,
	})
	var ve *core.ValidationError
	s.Require().True(errors.As(err, &ve))
	s.Equal("hours", ve.Field)
	s.Empty(s.store.TimeEntries())
}

func (s *StoreSuite) TestLogTimeUnknownProject() {
	_, err := s.store.LogTime(s.ctx, core.TimeEntry{
		Date: core.NewDate(2025, 6, 2), Hours: decimal.NewFromInt(1), ProjectID: "missing",
	})
	var ve *core.ValidationError
	s.True(errors.As(err, &ve))
}

func (s *StoreSuite) TestUpdateAndDeleteTimeEntry() {
	te := s.logHours(3, "2")
	te.Hours = decimal.NewFromInt(3)
	updated, err := s.store.UpdateTimeEntry(s.ctx, te.ID, te)
	s.Require().NoError(err)
	s.True(updated.Hours.Equal(decimal.NewFromInt(3)))

	s.Require().NoError(s.store.DeleteTimeEntry(s.ctx, te.ID))
	_, err = s.store.TimeEntry(te.ID)
	s.ErrorIs(err, core.ErrNotFound)
	s.ErrorIs(s.store.DeleteTimeEntry(s.ctx, te.ID), core.ErrNotFound)
}

func (s *StoreSuite) TestInvoiceTotalIsASnapshot() {
	a := s.logHours(2, "2")
	b := s.logHours(3, "1.5")

	inv, err := s.store.CreateInvoice(s.ctx, invoicing.Draft{ClientID: s.client.ID, TimeEntryIDs: []string{a.ID, b.ID}})
	s.Require().NoError(err)
	s.Equal(int64(28000), inv.TotalAmount.Cents)
	s.Equal("INV-2025-0001", inv.Number)
	s.Equal("2025-06-15", inv.IssueDate.String())

	linked, err := s.store.TimeEntry(a.ID)
	s.Require().NoError(err)
	s.Equal(inv.ID, linked.InvoiceID)

	a.Hours = decimal.NewFromInt(10)
	_, err = s.store.UpdateTimeEntry(s.ctx, a.ID, a)
	s.Require().NoError(err)
	s.Require().NoError(s.store.DeleteTimeEntry(s.ctx, b.ID))

	stored, err := s.store.Invoice(inv.ID)
	s.Require().NoError(err)
	s.Equal(int64(28000), stored.TotalAmount.Cents)
	s.Len(stored.Lines, 2)

	// Billing the same entry twice is rejected.
	_, err = s.store.CreateInvoice(s.ctx, invoicing.Draft{ClientID: s.client.ID, TimeEntryIDs: []string{a.ID}})
	var ve *core.ValidationError
	s.True(errors.As(err, &ve))
}

func (s *StoreSuite) TestCreateInvoiceMixedCurrency() {
	usd, err := s.store.AddProject(s.ctx, core.Project{ClientID: s.client.ID, Name: "US", HourlyRate: core.Money{Cents: 100}, Currency: "USD"})
	s.Require().NoError(err)
	a := s.logHours(2, "1")
	b, err := s.store.LogTime(s.ctx, core.TimeEntry{Date: core.NewDate(2025, 6, 2), Hours: decimal.NewFromInt(1), ProjectID: usd.ID, IsBillable: true})
	s.Require().NoError(err)

	_, err = s.store.CreateInvoice(s.ctx, invoicing.Draft{ClientID: s.client.ID, TimeEntryIDs: []string{a.ID, b.ID}})
	var ve *core.ValidationError
	s.True(errors.As(err, &ve))
	s.Empty(s.store.Invoices())

	entry, _ := s.store.TimeEntry(a.ID)
	s.Empty(entry.InvoiceID)
}

func (s *StoreSuite) TestCreateInvoiceUnknownEntry() {
	_, err := s.store.CreateInvoice(s.ctx, invoicing.Draft{ClientID: s.client.ID, TimeEntryIDs: []string{"ghost"}})
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *StoreSuite) TestPaymentsAndOverdue() {
	inv, err := s.store.CreateManualInvoice(s.ctx, invoicing.Draft{
		ClientID:  s.client.ID,
		IssueDate: core.NewDate(2025, 5, 1),
		DueDate:   core.NewDate(2025, 5, 31),
		Amount:    core.Money{Cents: 100000},
		Currency:  "EUR",
	})
	s.Require().NoError(err)

	// The store clock is 2025-06-15, past the due date.
	got, err := s.store.Invoice(inv.ID)
	s.Require().NoError(err)
	s.Equal(core.PaymentOverdue, got.PaymentStatus)

	saves := s.persister.saves[core.CollectionTime]
	paid, err := s.store.RecordPayment(s.ctx, inv.ID, core.Payment{Amount: core.Money{Cents: 100000}})
	s.Require().NoError(err)
	s.Equal(core.PaymentPaid, paid.PaymentStatus)
	s.Equal(core.InvoicePaid, paid.Status)
	s.Equal("2025-06-15", paid.Payments[0].Date.String())
	s.Equal(saves, s.persister.saves[core.CollectionTime], "payments only write invoices")

	_, err = s.store.CancelInvoice(s.ctx, inv.ID)
	s.Error(err)
}

func (s *StoreSuite) TestCancelReleasesEntries() {
	a := s.logHours(2, "1")
	inv, err := s.store.CreateInvoice(s.ctx, invoicing.Draft{ClientID: s.client.ID, TimeEntryIDs: []string{a.ID}})
	s.Require().NoError(err)

	cancelled, err := s.store.CancelInvoice(s.ctx, inv.ID)
	s.Require().NoError(err)
	s.Equal(core.InvoiceCancelled, cancelled.Status)

	entry, _ := s.store.TimeEntry(a.ID)
	s.Empty(entry.InvoiceID)

	again, err := s.store.CreateInvoice(s.ctx, invoicing.Draft{ClientID: s.client.ID, TimeEntryIDs: []string{a.ID}})
	s.Require().NoError(err)
	s.Equal("INV-2025-0002", again.Number)
}

func (s *StoreSuite) TestExpenses() {
	e, err := s.store.AddExpense(s.ctx, core.Expense{
		Date: core.NewDate(2025, 6, 1), Amount: core.Money{Cents: 4200}, Category: "travel",
		ProjectID: s.project.ID, PhaseID: s.project.Phases[0].ID,
	})
	s.Require().NoError(err)
	s.Equal(core.ExpenseDraft, e.Status)
	s.Equal(core.Currency("EUR"), e.Currency)

	_, err = s.store.AddExpense(s.ctx, core.Expense{
		Date: core.NewDate(2025, 6, 1), Amount: core.Money{Cents: 1}, Category: "x",
		ProjectID: s.project.ID, PhaseID: "other",
	})
	s.Error(err)

	e, err = s.store.SetExpenseStatus(s.ctx, e.ID, core.ExpenseApproved)
	s.Require().NoError(err)
	s.Equal(core.ExpenseApproved, e.Status)

	_, err = s.store.SetExpenseStatus(s.ctx, e.ID, "Lost")
	s.Error(err)

	e, err = s.store.AttachReceipt(s.ctx, e.ID, core.Receipt{FileName: "r.jpg", ContentType: "image/jpeg"})
	s.Require().NoError(err)
	s.Require().Len(e.Receipts, 1)
	s.False(e.Receipts[0].UploadedAt.IsZero())
	s.Equal(int64(4200), e.Amount.Cents)
}

func (s *StoreSuite) TestRates() {
	_, err := s.store.SetRates(s.ctx, []core.ExchangeRate{{From: "usd", To: "eur", Rate: decimal.RequireFromString("0.9")}})
	s.Require().NoError(err)
	rate, err := s.store.RateTable().Rate("EUR", "USD")
	s.Require().NoError(err)
	s.Equal("1.1111", rate.StringFixed(4))

	_, err = s.store.SetRates(s.ctx, []core.ExchangeRate{{From: "USD", To: "EUR"}})
	s.Error(err)
	s.Len(s.store.Rates(), 1)
}

func (s *StoreSuite) TestPersistFailureKeepsChange() {
	s.persister.failKey = core.CollectionExpenses
	before := len(s.publisher.events)

	e, err := s.store.AddExpense(s.ctx, core.Expense{Date: core.NewDate(2025, 6, 1), Amount: core.Money{Cents: 10}, Category: "x"})
	s.Error(err)
	s.NotEmpty(e.ID)
	s.Len(s.store.Expenses(), 1)
	s.Equal(before, len(s.publisher.events), "nothing is announced for unsaved changes")
}

func (s *StoreSuite) TestPublishFailureIsNotAnError() {
	s.publisher.err = errors.New("broker down")
	_, err := s.store.AddClient(s.ctx, core.Client{Name: "Globex"})
	s.NoError(err)
}

func (s *StoreSuite) TestEventsAndRevision() {
	rev := s.store.Revision()
	te := s.logHours(4, "1")
	s.Greater(s.store.Revision(), rev)

	last := s.publisher.events[len(s.publisher.events)-1]
	s.Equal(core.CollectionTime, last.Collection)
	s.Equal(te.ID, last.ID)
	s.Equal(core.OpCreated, last.Op)
}

func (s *StoreSuite) TestOpenReloadsEverything() {
	s.logHours(4, "1.25")
	reopened, err := Open(s.ctx, s.persister)
	s.Require().NoError(err)

	s.Len(reopened.Clients(), 1)
	s.Len(reopened.Projects(), 1)
	entries := reopened.TimeEntries()
	s.Require().Len(entries, 1)
	s.True(entries[0].Hours.Equal(decimal.RequireFromString("1.25")))
}

func TestOpen_BadPayload(t *testing.T) {
	p := newMapPersister()
	p.data[core.CollectionClients] = []byte("{not json")
	_, err := Open(context.Background(), p)
	require.Error(t, err)
}

func TestOpen_Empty(t *testing.T) {
	s, err := Open(context.Background(), newMapPersister())
	require.NoError(t, err)
	assert.Empty(t, s.Clients())
	assert.Equal(t, uint64(0), s.Revision())

	raw, _ := json.Marshal(s.Invoices())
	assert.JSONEq(t, "[]", string(raw))
}

package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly RepetitionTypes = "monthly"
	Yearly  RepetitionTypes = "yearly"
	Weekly  RepetitionTypes = "weekly"
	Daily   RepetitionTypes = "daily"
)

const (
	ExpenseDraft      ExpenseStatus = "Draft"
	ExpenseSubmitted  ExpenseStatus = "Submitted"
	ExpenseApproved   ExpenseStatus = "Approved"
	ExpenseReimbursed ExpenseStatus = "Reimbursed"
	ExpenseRejected   ExpenseStatus = "Rejected"
)

const (
	InvoiceDraft     InvoiceStatus = "Draft"
	InvoiceSent      InvoiceStatus = "Sent"
	InvoicePaid      InvoiceStatus = "Paid"
	InvoiceCancelled InvoiceStatus = "Cancelled"
)

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentOverdue PaymentStatus = "Overdue"
)

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectOnHold    ProjectStatus = "OnHold"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectArchived  ProjectStatus = "Archived"
)

type (
	RepetitionTypes string
	ExpenseStatus   string
	InvoiceStatus   string
	PaymentStatus   string
	ProjectStatus   string

	Client struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Email    string   `json:"email,omitempty"`
		Currency Currency `json:"currency"`
		Notes    string   `json:"notes,omitempty"`
	}

	Phase struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	Project struct {
		ID         string        `json:"id"`
		ClientID   string        `json:"clientId"`
		Name       string        `json:"name"`
		HourlyRate Money         `json:"hourlyRate"`
		Currency   Currency      `json:"currency"`
		Status     ProjectStatus `json:"status"`
		Phases     []Phase       `json:"phases,omitempty"`
	}

	TimeEntry struct {
		ID          string          `json:"id"`
		Date        Date            `json:"date"`
		StartTime   *ClockTime      `json:"startTime,omitempty"`
		StopTime    *ClockTime      `json:"stopTime,omitempty"`
		Overnight   bool            `json:"overnight,omitempty"`
		Hours       decimal.Decimal `json:"hours"`
		ProjectID   string          `json:"projectId"`
		Description string          `json:"description"`
		IsBillable  bool            `json:"isBillable"`
		InvoiceID   string          `json:"invoiceId,omitempty"`
	}

	Receipt struct {
		ID          string         `json:"id"`
		FileName    string         `json:"fileName"`
		ContentType string         `json:"contentType"`
		Size        int64          `json:"size"`
		UploadedAt  time.Time      `json:"uploadedAt"`
		Extracted   *ReceiptFields `json:"extracted,omitempty"`
	}

	// ReceiptFields is what the extraction service reads off a receipt image.
	ReceiptFields struct {
		Vendor   string   `json:"vendor,omitempty"`
		Date     Date     `json:"date"`
		Amount   Money    `json:"amount"`
		Currency Currency `json:"currency,omitempty"`
	}

	Expense struct {
		ID          string        `json:"id"`
		Date        Date          `json:"date"`
		Amount      Money         `json:"amount"`
		Currency    Currency      `json:"currency"`
		Category    string        `json:"category"`
		Description string        `json:"description"`
		Vendor      string        `json:"vendor,omitempty"`
		Status      ExpenseStatus `json:"status"`
		ProjectID   string        `json:"projectId,omitempty"`
		PhaseID     string        `json:"phaseId,omitempty"`
		IsBillable  bool          `json:"isBillable"`
		Receipts    []Receipt     `json:"receipts,omitempty"`
	}

	Payment struct {
		Date   Date   `json:"date"`
		Amount Money  `json:"amount"`
		Method string `json:"method,omitempty"`
		Note   string `json:"note,omitempty"`
	}

	// InvoiceLine is the frozen copy of one billed time entry.
	InvoiceLine struct {
		TimeEntryID string          `json:"timeEntryId"`
		ProjectID   string          `json:"projectId"`
		Date        Date            `json:"date"`
		Description string          `json:"description"`
		Hours       decimal.Decimal `json:"hours"`
		Rate        Money           `json:"rate"`
		Amount      Money           `json:"amount"`
	}

	Invoice struct {
		ID            string        `json:"id"`
		Number        string        `json:"number"`
		ClientID      string        `json:"clientId"`
		IssueDate     Date          `json:"issueDate"`
		DueDate       Date          `json:"dueDate"`
		TimeEntryIDs  []string      `json:"timeEntryIds,omitempty"`
		Lines         []InvoiceLine `json:"lines,omitempty"`
		Manual        bool          `json:"manual"`
		Currency      Currency      `json:"currency"`
		TotalAmount   Money         `json:"totalAmount"`
		PaidAmount    Money         `json:"paidAmount"`
		Status        InvoiceStatus `json:"status"`
		PaymentStatus PaymentStatus `json:"paymentStatus"`
		Payments      []Payment     `json:"payments,omitempty"`
		Notes         string        `json:"notes,omitempty"`
	}

	RecurringExpense struct {
		ID            string          `json:"id"`
		StartDate     Date            `json:"startDate"`
		EndDate       Date            `json:"endDate"`
		Every         RepetitionTypes `json:"every"`
		Description   string          `json:"description"`
		Amount        Money           `json:"amount"`
		Currency      Currency        `json:"currency"`
		Category      string          `json:"category"`
		ProjectID     string          `json:"projectId,omitempty"`
		LastExecution time.Time       `json:"lastExecution"`
	}

	ExchangeRate struct {
		From Currency        `json:"from"`
		To   Currency        `json:"to"`
		Rate decimal.Decimal `json:"rate"`
	}
)

var (
	ErrNotFound = errors.New("not found")

	ErrInvalidAmount    = &ValidationError{Field: "amount", Message: "invalid amount"}
	ErrEmptyDescription = &ValidationError{Field: "description", Message: "empty description"}
	ErrEmptyCategory    = &ValidationError{Field: "category", Message: "empty category"}
	ErrEmptyName        = &ValidationError{Field: "name", Message: "empty name"}
	ErrEmptyProject     = &ValidationError{Field: "projectId", Message: "project is required"}
	ErrEmptyClient      = &ValidationError{Field: "clientId", Message: "client is required"}
)

func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpenseDraft, ExpenseSubmitted, ExpenseApproved, ExpenseReimbursed, ExpenseRejected:
		return true
	}
	return false
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceCancelled:
		return true
	}
	return false
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectOnHold, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Currency != "" {
		return c.Currency.Validate()
	}
	return nil
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return ErrEmptyClient
	}
	if p.HourlyRate.Cents < 0 {
		return &ValidationError{Field: "hourlyRate", Message: "hourly rate cannot be negative"}
	}
	if err := p.Currency.Validate(); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown project status " + string(p.Status)}
	}
	return nil
}

// Phase returns the project phase with the given id.
func (p Project) Phase(id string) (Phase, bool) {
	for _, ph := range p.Phases {
		if ph.ID == id {
			return ph, true
		}
	}
	return Phase{}, false
}

// Validate checks the entry fields. It does not re-run reconciliation; the
// start/stop/hours agreement is checked only when both clock times are set.
func (te TimeEntry) Validate() error {
	if err := te.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(te.ProjectID) == "" {
		return ErrEmptyProject
	}
	if !te.Hours.IsPositive() || te.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return &ValidationError{Field: "hours", Message: "hours must be greater than 0 and at most 24"}
	}
	if len(te.Description) > 500 {
		return &ValidationError{Field: "description", Message: "description too long (max 500 characters)"}
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 200 {
		return &ValidationError{Field: "description", Message: "description too long (max 200 characters)"}
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Currency.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown expense status " + string(e.Status)}
	}
	return nil
}

func (p Payment) Validate() error {
	if err := p.Date.Validate(); err != nil {
		return err
	}
	return p.Amount.Validate()
}

// Outstanding is the part of the total not yet paid, never below zero.
func (inv Invoice) Outstanding() Money {
	if inv.PaidAmount.Cents >= inv.TotalAmount.Cents {
		return Money{}
	}
	return Money{Cents: inv.TotalAmount.Cents - inv.PaidAmount.Cents}
}

func (re RecurringExpense) Validate() error {
	if err := re.StartDate.Validate(); err != nil {
		return &ValidationError{Field: "startDate", Message: "invalid start date: " + err.Error()}
	}

	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return &ValidationError{Field: "endDate", Message: "invalid end date: " + err.Error()}
		}
		if re.EndDate.Before(re.StartDate.Time) {
			return &ValidationError{Field: "endDate", Message: "end date must be after start date"}
		}
	}

	switch re.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return &ValidationError{Field: "every", Message: "invalid repetition type"}
	}

	if len(strings.TrimSpace(re.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := re.Amount.Validate(); err != nil {
		return err
	}
	if err := re.Currency.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(re.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (r ExchangeRate) Validate() error {
	if err := r.From.Validate(); err != nil {
		return err
	}
	if err := r.To.Validate(); err != nil {
		return err
	}
	if !r.Rate.IsPositive() {
		return &ValidationError{Field: "rate", Message: "rate must be positive"}
	}
	return nil
}

// ActiveOn reports whether the template is in effect on the given day.
func (re RecurringExpense) ActiveOn(day Date) bool {
	if day.Before(re.StartDate.Time) {
		return false
	}
	return re.EndDate.IsZero() || !day.After(re.EndDate.Time)
}

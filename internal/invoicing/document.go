package invoicing

import (
	"github.com/shopspring/decimal"

	"billbook/internal/core"
)

// Document is everything a printable invoice needs, resolved from ids to
// names. Rendering it is left to the caller.
type Document struct {
	Number        string             `json:"number"`
	Client        core.Client        `json:"client"`
	IssueDate     core.Date          `json:"issueDate"`
	DueDate       core.Date          `json:"dueDate"`
	Currency      core.Currency      `json:"currency"`
	Lines         []DocumentLine     `json:"lines"`
	TotalHours    decimal.Decimal    `json:"totalHours"`
	Total         core.Money         `json:"total"`
	Paid          core.Money         `json:"paid"`
	Outstanding   core.Money         `json:"outstanding"`
	Status        core.InvoiceStatus `json:"status"`
	PaymentStatus core.PaymentStatus `json:"paymentStatus"`
	Notes         string             `json:"notes,omitempty"`
}

type DocumentLine struct {
	Date        core.Date       `json:"date"`
	Project     string          `json:"project"`
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        core.Money      `json:"rate"`
	Amount      core.Money      `json:"amount"`
}

// NewDocument assembles the printable view from the invoice snapshot. Project
// names come from projects; unknown projects fall back to their id. Manual
// invoices get a single line for the whole amount.
func NewDocument(inv core.Invoice, client core.Client, projects map[string]core.Project) Document {
	doc := Document{
		Number:        inv.Number,
		Client:        client,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		Currency:      inv.Currency,
		Total:         inv.TotalAmount,
		Paid:          inv.PaidAmount,
		Outstanding:   inv.Outstanding(),
		Status:        inv.Status,
		PaymentStatus: inv.PaymentStatus,
		Notes:         inv.Notes,
	}
	if inv.Manual {
		doc.Lines = []DocumentLine{{Date: inv.IssueDate, Description: inv.Notes, Amount: inv.TotalAmount}}
		return doc
	}
	for _, l := range inv.Lines {
		name := l.ProjectID
		if p, ok := projects[l.ProjectID]; ok {
			name = p.Name
		}
		doc.Lines = append(doc.Lines, DocumentLine{
			Date:        l.Date,
			Project:     name,
			Description: l.Description,
			Hours:       l.Hours,
			Rate:        l.Rate,
			Amount:      l.Amount,
		})
		doc.TotalHours = doc.TotalHours.Add(l.Hours)
	}
	return doc
}

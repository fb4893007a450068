package invoicing

import "billbook/internal/core"

// PaymentStatusAt derives the payment status on a given day. Anything not
// fully paid after its due date is overdue.
func PaymentStatusAt(inv core.Invoice, asOf core.Date) core.PaymentStatus {
	switch {
	case inv.TotalAmount.Cents > 0 && inv.PaidAmount.Cents >= inv.TotalAmount.Cents:
		return core.PaymentPaid
	case !inv.DueDate.IsZero() && !asOf.IsZero() && asOf.After(inv.DueDate.Time):
		return core.PaymentOverdue
	case inv.PaidAmount.Cents > 0:
		return core.PaymentPartial
	default:
		return core.PaymentUnpaid
	}
}

// ApplyPayment records p on the invoice and refreshes its statuses. Payments
// on cancelled invoices and payments larger than the outstanding amount are
// rejected.
func ApplyPayment(inv *core.Invoice, p core.Payment, asOf core.Date) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if inv.Status == core.InvoiceCancelled {
		return &core.ValidationError{Field: "status", Message: "invoice is cancelled"}
	}
	if p.Amount.Cents > inv.Outstanding().Cents {
		return core.NewValidationError("amount", "payment %s exceeds outstanding %s", p.Amount, inv.Outstanding())
	}

	inv.Payments = append(inv.Payments, p)
	inv.PaidAmount = inv.PaidAmount.Add(p.Amount)
	inv.PaymentStatus = PaymentStatusAt(*inv, asOf)
	if inv.PaymentStatus == core.PaymentPaid {
		inv.Status = core.InvoicePaid
	} else if inv.Status == core.InvoiceDraft {
		inv.Status = core.InvoiceSent
	}
	return nil
}

// Refresh recomputes the payment status of every invoice for asOf.
func Refresh(invoices []core.Invoice, asOf core.Date) {
	for i := range invoices {
		if invoices[i].Status == core.InvoiceCancelled {
			continue
		}
		invoices[i].PaymentStatus = PaymentStatusAt(invoices[i], asOf)
	}
}

// Package status derives installment and invoice statuses from the schedule.
// Derivations are pure so they can run on every load/save pass.
package status

import (
	"time"

	invoicedomain "github.com/smallbiznis/backoffice/internal/invoice/domain"
)

// ForInstallment returns the installment's status as of today. Pending items
// whose due date has passed become overdue; paid is sticky and never
// downgraded. Comparison is date-only, time of day is stripped.
func ForInstallment(inst invoicedomain.Installment, today time.Time) invoicedomain.InstallmentStatus {
	if inst.Status == invoicedomain.InstallmentStatusPaid {
		return invoicedomain.InstallmentStatusPaid
	}
	if beforeDay(inst.DueDate, today) {
		return invoicedomain.InstallmentStatusOverdue
	}
	return inst.Status
}

// ForInvoice derives the invoice status from a non-empty installment list.
func ForInvoice(installments []invoicedomain.Installment) invoicedomain.InvoiceStatus {
	paid := 0
	overdue := 0
	for _, inst := range installments {
		switch inst.Status {
		case invoicedomain.InstallmentStatusPaid:
			paid++
		case invoicedomain.InstallmentStatusOverdue:
			overdue++
		}
	}

	switch {
	case len(installments) > 0 && paid == len(installments):
		return invoicedomain.InvoiceStatusSettled
	case paid > 0:
		return invoicedomain.InvoiceStatusPartiallyPaid
	case overdue > 0:
		return invoicedomain.InvoiceStatusOverdue
	default:
		return invoicedomain.InvoiceStatusActive
	}
}

// ForInstallmentless derives the status of an invoice with no installments.
// A manual transition to settled is honored as terminal until reopened; any
// other stored status is kept unless the invoice's own due date has passed.
func ForInstallmentless(current invoicedomain.InvoiceStatus, dueDate *time.Time, today time.Time) invoicedomain.InvoiceStatus {
	if current == invoicedomain.InvoiceStatusSettled {
		return invoicedomain.InvoiceStatusSettled
	}
	if dueDate != nil && beforeDay(*dueDate, today) {
		return invoicedomain.InvoiceStatusOverdue
	}
	return current
}

// Pass applies installment transitions and invoice derivation in place and
// reports whether anything changed.
func Pass(inv *invoicedomain.Invoice, today time.Time) bool {
	changed := false

	for i := range inv.Installments {
		next := ForInstallment(inv.Installments[i], today)
		if next != inv.Installments[i].Status {
			inv.Installments[i].Status = next
			changed = true
		}
	}

	var next invoicedomain.InvoiceStatus
	if len(inv.Installments) > 0 {
		next = ForInvoice(inv.Installments)
	} else {
		next = ForInstallmentless(inv.Status, inv.DueDate, today)
	}
	if next != inv.Status {
		inv.Status = next
		changed = true
	}
	return changed
}

func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	aDay := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bDay := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return aDay.Before(bDay)
}

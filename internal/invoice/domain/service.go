package domain

import (
	"context"
	"time"
)

type CreateInvoiceRequest struct {
	DocumentNumber   string     `json:"document_number"`
	CustomerName     string     `json:"customer_name"`
	IssueDate        *time.Time `json:"issue_date"`
	DueDate          *time.Time `json:"due_date"`
	TotalAmount      string     `json:"total_amount"`
	InstallmentCount int        `json:"installment_count"`
	Notes            string     `json:"notes"`
}

// UpdateInvoiceRequest carries a partial edit; nil fields are left untouched.
type UpdateInvoiceRequest struct {
	DocumentNumber   *string            `json:"document_number"`
	CustomerName     *string            `json:"customer_name"`
	IssueDate        *time.Time         `json:"issue_date"`
	DueDate          *time.Time         `json:"due_date"`
	TotalAmount      *string            `json:"total_amount"`
	InstallmentCount *int               `json:"installment_count"`
	Notes            *string            `json:"notes"`
	Status           *InvoiceStatus     `json:"status"`
	Installments     []InstallmentPatch `json:"installments"`
}

// InstallmentPatch is a manual edit to a single installment, addressed by its
// sequence number within the invoice.
type InstallmentPatch struct {
	SequenceNumber int                `json:"sequence_number"`
	Amount         *string            `json:"amount"`
	DueDate        *time.Time         `json:"due_date"`
	Status         *InstallmentStatus `json:"status"`
	Notes          *string            `json:"notes"`
	Reopen         bool               `json:"reopen"`
}

type Service interface {
	List(ctx context.Context) ([]Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	Update(ctx context.Context, id string, req UpdateInvoiceRequest) (Invoice, error)
	Delete(ctx context.Context, id string) error

	// EscalateOverdue persists the pending->overdue transition for the matched
	// item so the escalation sticks even if the user declines to pay.
	EscalateOverdue(ctx context.Context, candidate OverdueCandidate) error
	// ConfirmOverduePayment marks the matched installment paid (or settles the
	// installment-less invoice) and re-derives the invoice status.
	ConfirmOverduePayment(ctx context.Context, candidate OverdueCandidate) error
}

// Package domain contains persistence models for the invoice/installment ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusActive        InvoiceStatus = "active"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusSettled       InvoiceStatus = "settled"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
)

// IsValid checks if the status is a known InvoiceStatus.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusActive, InvoiceStatusOverdue, InvoiceStatusSettled, InvoiceStatusPartiallyPaid:
		return true
	}
	return false
}

func (s InvoiceStatus) String() string { return string(s) }

// InstallmentStatus represents installment payment states.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
	InstallmentStatusPaid    InstallmentStatus = "paid"
)

// IsValid checks if the status is a known InstallmentStatus.
func (s InstallmentStatus) IsValid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusOverdue, InstallmentStatusPaid:
		return true
	}
	return false
}

func (s InstallmentStatus) String() string { return string(s) }

// Invoice represents a billed amount, optionally split into installments.
type Invoice struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	DocumentNumber   string          `gorm:"type:text;not null;uniqueIndex:ux_invoice_document_number" json:"document_number"`
	CustomerName     string          `gorm:"type:text;not null" json:"customer_name"`
	IssueDate        time.Time       `gorm:"not null" json:"issue_date"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	InstallmentCount int             `gorm:"not null;default:1" json:"installment_count"`
	Installments     []Installment   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"installments"`
	Status           InvoiceStatus   `gorm:"type:text;not null;default:'active'" json:"status"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InstallmentAmount derives the per-installment amount from the invoice total.
func (i Invoice) InstallmentAmount() decimal.Decimal {
	if i.InstallmentCount <= 0 {
		return i.TotalAmount
	}
	return i.TotalAmount.Div(decimal.NewFromInt(int64(i.InstallmentCount))).Round(2)
}

// Installment represents one scheduled partial payment belonging to an invoice.
type Installment struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID      snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_installment_sequence" json:"invoice_id"`
	SequenceNumber int               `gorm:"not null;uniqueIndex:ux_installment_sequence" json:"sequence_number"`
	Amount         decimal.Decimal   `gorm:"type:decimal(18,2);not null" json:"amount"`
	DueDate        time.Time         `gorm:"not null" json:"due_date"`
	Status         InstallmentStatus `gorm:"type:text;not null;default:'pending'" json:"status"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	Notes          string            `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Installment) TableName() string { return "installments" }

// OverdueCandidate identifies the single unresolved overdue item presented for
// a pay/not-pay decision. InstallmentID is nil for installment-less invoices.
type OverdueCandidate struct {
	InvoiceID      snowflake.ID    `json:"invoice_id"`
	InstallmentID  *snowflake.ID   `json:"installment_id,omitempty"`
	DocumentNumber string          `json:"document_number"`
	SequenceNumber int             `json:"sequence_number,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"due_date"`
}

// Key returns the session-scoped identifier used by the overdue scanner's
// "already asked" set.
func (c OverdueCandidate) Key() string {
	if c.InstallmentID != nil {
		return c.InstallmentID.String()
	}
	return c.InvoiceID.String()
}

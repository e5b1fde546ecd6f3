package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField          = errors.New("missing_field")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrDuplicateDocument     = errors.New("duplicate_document")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrInstallmentNotFound   = errors.New("installment_not_found")
	ErrInstallmentPaid       = errors.New("installment_already_paid")
	ErrScheduleInconsistency = errors.New("schedule_inconsistency")
)

// MissingField wraps ErrMissingField with the offending field name.
func MissingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

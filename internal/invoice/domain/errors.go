package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest         = errors.New("invalid_request")
	ErrInvalidTenant          = errors.New("invalid_tenant")
	ErrInvalidInvoiceID       = errors.New("invalid_invoice_id")
	ErrInvalidItemID          = errors.New("invalid_item_id")
	ErrInvalidInvoiceType     = errors.New("invalid_invoice_type")
	ErrInvalidPaymentTerms    = errors.New("invalid_payment_terms")
	ErrInvalidDiscount        = errors.New("invalid_discount")
	ErrInvalidQuantity        = errors.New("invalid_quantity")
	ErrInvalidPaymentMethod   = errors.New("invalid_payment_method")
	ErrEmptyItems             = errors.New("empty_items")
	ErrInvoiceNotFound        = errors.New("invoice_not_found")
	ErrItemNotFound           = errors.New("invoice_item_not_found")
	ErrInvalidTransition      = errors.New("invalid_status_transition")
	ErrInvoiceNotEditable     = errors.New("invoice_not_editable")
	ErrCreditNoteNotAllowed   = errors.New("credit_note_not_allowed")
	ErrNumberingConflict      = errors.New("numbering_conflict")
	ErrInvariantViolation     = errors.New("invariant_violation")
	ErrUnsupportedSequenceKey = errors.New("unsupported_sequence_key")
)

// NumberingConflictError means the allocator could not hand out a number.
// The whole invoice creation has to be retried; the number is never reused.
type NumberingConflictError struct {
	Key    string
	Reason string
	Err    error
}

func (e *NumberingConflictError) Error() string {
	return fmt.Sprintf("numbering conflict on %s (%s): %v", e.Key, e.Reason, e.Err)
}

func (e *NumberingConflictError) Unwrap() error { return e.Err }

func (e *NumberingConflictError) Is(target error) bool { return target == ErrNumberingConflict }

// InvariantViolationError reports stored totals that disagree with the items
// after a recalculation. It always aborts the surrounding transaction.
type InvariantViolationError struct {
	InvoiceID snowflake.ID
	Field     string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invoice %s: %s is %s, expected %s", e.InvoiceID, e.Field, e.Actual.StringFixed(2), e.Expected.StringFixed(2))
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

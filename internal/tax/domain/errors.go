package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidTaxCategory = errors.New("invalid_tax_category")
	ErrInvalidItemID      = errors.New("invalid_item_id")
)

// InvalidInputError rejects a malformed item before any arithmetic happens.
type InvalidInputError struct {
	Index int
	Field string
	Err   error
}

func NewInvalidInput(index int, field string, err error) *InvalidInputError {
	return &InvalidInputError{Index: index, Field: field, Err: err}
}

func (e *InvalidInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid input: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid input: items[%d].%s: %v", e.Index, e.Field, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

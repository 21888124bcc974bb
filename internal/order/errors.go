package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrAlreadyPaid      = errors.New("order already paid")
	ErrHasPayments      = errors.New("cannot delete order with associated payments")
	ErrNotCancellable   = errors.New("order cannot be cancelled")
	ErrNotPending       = errors.New("order payment already processed")
	ErrDuplicateNumber  = errors.New("order number already exists")
	ErrInvalidOrderData = errors.New("invalid order data")
)

// ValidationError is a caller-correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidOrderData }

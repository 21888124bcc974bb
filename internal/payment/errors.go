package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("payment not found")
	ErrNotRefundable       = errors.New("payment cannot be refunded")
	ErrRefundExceedsAmount = errors.New("refund amount exceeds payment amount")
	ErrInvalidAmount       = errors.New("refund amount must be positive")
	ErrNotPaid             = errors.New("payment is not paid")
	ErrOrderNotPending     = errors.New("order payment already processed")
	ErrOrderCancelled      = errors.New("order is cancelled")
	ErrReferenceNotFound   = errors.New("payment reference not found")
	ErrMissingPaymentID    = errors.New("payment id not provided")
	ErrDuplicatePaymentID  = errors.New("payment id already exists")
	ErrMethodsUnsupported  = errors.New("gateway does not list payment methods")
)

type RefundExceedsAmountError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *RefundExceedsAmountError) Error() string {
	return fmt.Sprintf("refund amount %s exceeds payment amount %s", e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *RefundExceedsAmountError) Unwrap() error { return ErrRefundExceedsAmount }

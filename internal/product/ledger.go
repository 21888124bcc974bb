package product

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// InsufficientStockError names the product whose stock cannot cover a request.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product: %s (requested %d, available %d)", name, e.Requested, e.Available)
}

// Ledger is the atomic inventory primitive. Decrement never lets stock go
// negative: it either applies the full quantity or returns
// *InsufficientStockError without touching the row.
type Ledger interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	Decrement(ctx context.Context, id string, qty int) error
	Increment(ctx context.Context, id string, qty int) error
}

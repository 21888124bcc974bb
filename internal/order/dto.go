package order

import "github.com/shopspring/decimal"

// CreateOrderItem item payload.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID string `json:"product_id" binding:"required" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  binding:"required,gt=0" example:"2"`
}

// CreateOrderRequest order creation payload.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items           []CreateOrderItem `json:"items" binding:"required,min=1,dive"`
	PaymentMethod   string            `json:"payment_method,omitempty" example:"tabby"`
	BillingAddress  Address           `json:"billing_address"`
	ShippingAddress *Address          `json:"shipping_address,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Discount        decimal.Decimal   `json:"discount,omitempty" swaggertype:"string" example:"0"`
}

func (r CreateOrderRequest) Input() CreateInput {
	items := make([]ItemInput, len(r.Items))
	for i, it := range r.Items {
		items[i] = ItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return CreateInput{
		Items:           items,
		PaymentMethod:   r.PaymentMethod,
		BillingAddress:  r.BillingAddress,
		ShippingAddress: r.ShippingAddress,
		Notes:           r.Notes,
		Discount:        r.Discount,
	}
}

// UpdateOrderRequest editable order fields.
// swagger:model UpdateOrderRequest
type UpdateOrderRequest struct {
	Notes           *string  `json:"notes,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
}

func (r UpdateOrderRequest) Input() UpdateInput {
	return UpdateInput{Notes: r.Notes, BillingAddress: r.BillingAddress, ShippingAddress: r.ShippingAddress}
}

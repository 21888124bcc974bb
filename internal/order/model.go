package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	City    string `json:"city"`
	Address string `json:"address"`
	Region  string `json:"region,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          Status          `json:"order_status"`
	Notes           string          `json:"notes,omitempty"`
	BillingAddress  Address         `json:"billing_address"`
	ShippingAddress *Address        `json:"shipping_address,omitempty"`
	Items           []Item          `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       *time.Time      `json:"-"`
}

// DeliveryAddress is the shipping address, or billing when none was given.
func (o *Order) DeliveryAddress() Address {
	if o.ShippingAddress != nil {
		return *o.ShippingAddress
	}
	return o.BillingAddress
}

func (o *Order) IsPaid() bool { return o.PaymentStatus == PaymentPaid }

// CanBeCancelled: not finished, and no payment has been collected for it.
func (o *Order) CanBeCancelled() bool {
	if o.Status == StatusCompleted || o.Status == StatusCancelled {
		return false
	}
	return o.PaymentStatus != PaymentPaid && o.PaymentStatus != PaymentRefunded
}

// Item is a price snapshot taken when the order was placed.
type Item struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

func NewItem(orderID, productID, productName string, qty int, unitPrice decimal.Decimal) Item {
	it := Item{OrderID: orderID, ProductID: productID, ProductName: productName}
	it.Quantity = qty
	it.UnitPrice = unitPrice
	it.recalculate()
	return it
}

func (it *Item) SetQuantity(qty int) {
	it.Quantity = qty
	it.recalculate()
}

func (it *Item) SetUnitPrice(p decimal.Decimal) {
	it.UnitPrice = p
	it.recalculate()
}

func (it *Item) recalculate() {
	it.TotalPrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
}

// Filter narrows ListByUser.
type Filter struct {
	Status        Status
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

// Package gateway talks to the third-party payment providers and normalizes
// their responses. Clients never touch order or payment state.
package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/order"
)

const (
	MyFatoorah = "myfatoorah"
	Tabby      = "tabby"
	Tamara     = "tamara"
)

// Gateway is one provider's checkout API.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, c Checkout) (*Session, error)
	// VerifyPayment reports whether the provider considers the payment paid.
	VerifyPayment(ctx context.Context, paymentID string) (bool, error)
	CapturePayment(ctx context.Context, c Capture) (*Result, error)
	RefundPayment(ctx context.Context, r Refund) (*Result, error)
	// HandleWebhook records a delivery. It never changes state.
	HandleWebhook(ctx context.Context, payload []byte) error
}

// ReferenceResolver is implemented by providers whose callback carries an id
// other than the one returned at checkout.
type ReferenceResolver interface {
	ResolveReference(ctx context.Context, callbackID string) (*Reference, error)
}

// WebhookParser extracts the checkout payment id from a webhook body.
type WebhookParser interface {
	ParseWebhook(payload []byte) (paymentID string, err error)
}

// MethodLister lists the payment options a provider offers for an amount.
type MethodLister interface {
	PaymentMethods(ctx context.Context, q MethodsQuery) (json.RawMessage, error)
}

type Buyer struct {
	Name            string
	Email           string
	Phone           string
	DateOfBirth     string
	RegisteredSince time.Time
	EmailVerified   bool
}

type Checkout struct {
	Order *order.Order
	Buyer Buyer
}

// Session is a created checkout. PaymentID may be empty when the provider
// returns no identifier.
type Session struct {
	PaymentURL string
	PaymentID  string
	Raw        json.RawMessage
}

type Capture struct {
	Order     *order.Order
	PaymentID string
}

type Refund struct {
	PaymentID   string
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
}

type Result struct {
	ID     string          `json:"id,omitempty"`
	Status string          `json:"status,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

type Reference struct {
	OrderNumber string
	PaymentID   string
	Paid        bool
	Raw         json.RawMessage
}

type MethodsQuery struct {
	Amount decimal.Decimal
	Phone  string
}

// number renders an amount as a JSON number with two decimals.
func number(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexID(n.String())
	return nil
}

func redirectURL(callback, gateway, status string) string {
	return callback + "?gateway=" + gateway + "&status=" + status
}

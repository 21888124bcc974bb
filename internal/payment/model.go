package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Payment is one checkout attempt for an order. An order may have several;
// the most recent one wins when a callback is resolved by order reference.
type Payment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	PaymentID       string          `json:"payment_id"`
	Gateway         string          `json:"gateway"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty" swaggertype:"object"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Payment) IsPaid() bool { return p.Status == StatusPaid }

func (p *Payment) CanBeRefunded() bool { return p.Status == StatusPaid }

// settled payments are never moved by reconciliation again.
func (p *Payment) settled() bool { return p.Status == StatusPaid || p.Status == StatusRefunded }

// MergeResponse stores v under key in the raw gateway response, keeping the
// other keys. A non-object response is kept under "checkout".
func (p *Payment) MergeResponse(key string, v any) error {
	doc := map[string]json.RawMessage{}
	if len(p.GatewayResponse) > 0 {
		if err := json.Unmarshal(p.GatewayResponse, &doc); err != nil {
			doc = map[string]json.RawMessage{"checkout": p.GatewayResponse}
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	doc[key] = b
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	p.GatewayResponse = merged
	return nil
}

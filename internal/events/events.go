// Package events publishes domain events about orders and payments.
package events

import (
	"context"
	"time"
)

const (
	OrderCreated    = "order.created"
	OrderCancelled  = "order.cancelled"
	OrderDeleted    = "order.deleted"
	PaymentPaid     = "payment.paid"
	PaymentFailed   = "payment.failed"
	PaymentRefunded = "payment.refunded"
	PaymentCaptured = "payment.captured"
)

// Event is the JSON envelope written to the broker. Key orders events of the
// same aggregate on one partition.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func New(typ, key string, data any) Event {
	return Event{Type: typ, Key: key, OccurredAt: time.Now().UTC(), Data: data}
}

// Publisher is called after the owning transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }

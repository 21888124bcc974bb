package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPricing_ShippingTiers(t *testing.T) {
	p := DefaultPricing()
	cases := []struct {
		subtotal string
		want     string
	}{
		{"0", "100"},
		{"199.99", "100"},
		{"200", "50"},
		{"499.99", "50"},
		{"500", "0"},
		{"1200", "0"},
	}
	for _, tc := range cases {
		assert.True(t, d(tc.want).Equal(p.Shipping(d(tc.subtotal))), "subtotal %s", tc.subtotal)
	}
}

func TestPricing_Totals(t *testing.T) {
	tot := DefaultPricing().Totals(d("200"), decimal.Zero)
	assert.Equal(t, "200.00", tot.Subtotal.StringFixed(2))
	assert.Equal(t, "30.00", tot.Tax.StringFixed(2))
	assert.Equal(t, "50.00", tot.Shipping.StringFixed(2))
	assert.Equal(t, "280.00", tot.Total.StringFixed(2))
}

func TestPricing_DiscountClamped(t *testing.T) {
	p := DefaultPricing()

	neg := p.Totals(d("100"), d("-10"))
	assert.True(t, neg.Discount.IsZero())
	assert.Equal(t, "215.00", neg.Total.StringFixed(2))

	huge := p.Totals(d("100"), d("10000"))
	assert.Equal(t, "215.00", huge.Discount.StringFixed(2))
	assert.True(t, huge.Total.IsZero())

	some := p.Totals(d("600"), d("40"))
	assert.Equal(t, "650.00", some.Total.StringFixed(2))
}

func TestItem_RecalculatesTotal(t *testing.T) {
	it := NewItem("o1", "p1", "Mouse", 3, d("19.99"))
	assert.Equal(t, "59.97", it.TotalPrice.StringFixed(2))

	it.SetQuantity(1)
	assert.Equal(t, "19.99", it.TotalPrice.StringFixed(2))

	it.SetUnitPrice(d("25"))
	assert.Equal(t, "25.00", it.TotalPrice.StringFixed(2))
}

func TestOrder_CanBeCancelled(t *testing.T) {
	o := Order{Status: StatusPending, PaymentStatus: PaymentPending}
	assert.True(t, o.CanBeCancelled())

	o.PaymentStatus = PaymentFailed
	assert.True(t, o.CanBeCancelled())

	o.PaymentStatus = PaymentPaid
	assert.False(t, o.CanBeCancelled())

	o = Order{Status: StatusCompleted, PaymentStatus: PaymentPending}
	assert.False(t, o.CanBeCancelled())
}

func TestNewOrderNumber_Format(t *testing.T) {
	n := NewOrderNumber(time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	assert.Regexp(t, `^ORD-20250309-[0-9A-F]{8}$`, n)
	assert.NotEqual(t, n, NewOrderNumber(time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)))
}

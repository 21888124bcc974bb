package order

import (
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
)

// Pricing computes tax and tiered shipping for a subtotal.
type Pricing struct {
	TaxRate                  decimal.Decimal
	FreeShippingThreshold    decimal.Decimal
	ReducedShippingThreshold decimal.Decimal
	ReducedShippingFee       decimal.Decimal
	StandardShippingFee      decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:                  decimal.RequireFromString("0.15"),
		FreeShippingThreshold:    decimal.NewFromInt(500),
		ReducedShippingThreshold: decimal.NewFromInt(200),
		ReducedShippingFee:       decimal.NewFromInt(50),
		StandardShippingFee:      decimal.NewFromInt(100),
	}
}

func PricingFromConfig(c config.Pricing) Pricing {
	return Pricing{
		TaxRate:                  c.TaxRate,
		FreeShippingThreshold:    c.FreeShippingThreshold,
		ReducedShippingThreshold: c.ReducedShippingThreshold,
		ReducedShippingFee:       c.ReducedShippingFee,
		StandardShippingFee:      c.StandardShippingFee,
	}
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

func (p Pricing) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(2)
}

func (p Pricing) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	switch {
	case subtotal.GreaterThanOrEqual(p.FreeShippingThreshold):
		return decimal.Zero
	case subtotal.GreaterThanOrEqual(p.ReducedShippingThreshold):
		return p.ReducedShippingFee
	default:
		return p.StandardShippingFee
	}
}

// Totals applies tax, shipping and the discount. The discount is clamped to
// [0, subtotal+tax+shipping] so the total is never negative.
func (p Pricing) Totals(subtotal, discount decimal.Decimal) Totals {
	t := Totals{
		Subtotal: subtotal.Round(2),
		Tax:      p.Tax(subtotal),
		Shipping: p.Shipping(subtotal),
	}
	gross := t.Subtotal.Add(t.Tax).Add(t.Shipping)
	switch {
	case discount.IsNegative():
		discount = decimal.Zero
	case discount.GreaterThan(gross):
		discount = gross
	}
	t.Discount = discount.Round(2)
	t.Total = gross.Sub(t.Discount)
	return t
}

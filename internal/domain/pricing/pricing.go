// Package pricing computes the order money breakdown. It is pure: no I/O,
// no clocks, no mutation of its inputs. The same inputs always produce the
// same breakdown.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/product"
	"github.com/lumenshop/checkout/internal/domain/promo"
	"github.com/lumenshop/checkout/internal/domain/shipping"
)

// Line is one priced cart entry. Quantity is already clamped to stock.
type Line struct {
	Product  product.Product
	Quantity int
}

// Breakdown is the computed money split for an order.
// TotalAmount = Subtotal − DiscountAmount + ShippingFee, never negative.
type Breakdown struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	TotalAmount    decimal.Decimal
	FreeShipping   bool
}

// Subtotal sums current_price × quantity across lines, rounding each line to
// two decimal places before summing.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		line := l.Product.CurrentPrice().Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		sum = sum.Add(line)
	}
	return sum
}

// Compute prices an order. The promo code, when present, is already
// validated; the quote reflects the tier resolved for the discounted amount.
func Compute(lines []Line, pc *promo.Code, quote *shipping.Quote) Breakdown {
	subtotal := Subtotal(lines)

	discount := decimal.Zero
	if pc != nil {
		discount = promo.Compute(pc, subtotal)
		if discount.IsNegative() {
			discount = decimal.Zero
		}
		discount = decimal.Min(discount, subtotal)
	}

	freeShipping := pc != nil && pc.Type == promo.TypeFreeShipping
	if quote != nil && quote.FreeShipping {
		freeShipping = true
	}

	fee := decimal.Zero
	if !freeShipping && quote != nil {
		fee = quote.Fee
	}

	total := subtotal.Sub(discount).Add(fee)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Breakdown{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ShippingFee:    fee,
		TotalAmount:    total,
		FreeShipping:   freeShipping,
	}
}

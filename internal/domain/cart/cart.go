package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/product"
)

// Entry is one stored cart row: a product reference and a quantity ≥ 1.
// Order of entries is preserved across requests.
type Entry struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// AppliedPromo is the promo snapshot held in the session after a successful
// apply. It is re-validated at order time; this copy only drives cart
// display totals.
type AppliedPromo struct {
	PromoCodeID    int64           `json:"promo_code_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"promo_type"`
	Value          decimal.Decimal `json:"promo_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// Cart is the per-session cart state.
type Cart struct {
	Entries []Entry       `json:"entries"`
	Promo   *AppliedPromo `json:"promo,omitempty"`
}

// Get returns the stored quantity for a product, zero when absent.
func (c *Cart) Get(productID int64) int {
	for _, e := range c.Entries {
		if e.ProductID == productID {
			return e.Quantity
		}
	}
	return 0
}

// Set stores a quantity, appending a new entry when the product is not yet
// in the cart. qty must be ≥ 1; use Remove to delete.
func (c *Cart) Set(productID int64, qty int) {
	for i := range c.Entries {
		if c.Entries[i].ProductID == productID {
			c.Entries[i].Quantity = qty
			return
		}
	}
	c.Entries = append(c.Entries, Entry{ProductID: productID, Quantity: qty})
}

// Remove deletes a product's entry, reporting whether it was present.
func (c *Cart) Remove(productID int64) bool {
	for i := range c.Entries {
		if c.Entries[i].ProductID == productID {
			c.Entries = append(c.Entries[:i], c.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Store persists carts keyed by session ID. Implementations live in
// internal/session (in-memory for single-instance dev, Redis for
// multi-instance deployments).
type Store interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Put(ctx context.Context, sessionID string, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// Item is a cart entry resolved against the live catalog.
type Item struct {
	Product  product.Product
	Quantity int
	Subtotal decimal.Decimal
}

// View is the cart as presented to the storefront: purchasable rows only,
// with display totals that include any applied promo.
type View struct {
	Items          []Item
	TotalItems     int
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Promo          *AppliedPromo
}

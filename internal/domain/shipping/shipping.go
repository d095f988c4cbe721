package shipping

import (
	"context"

	"github.com/shopspring/decimal"
)

// Tier is a half-open band [MinAmount, MaxAmount) of order amounts sharing
// one shipping rule. A nil MaxAmount means no upper bound. Active tiers are
// pairwise non-overlapping.
type Tier struct {
	ID           int64
	Name         string
	MinAmount    decimal.Decimal
	MaxAmount    *decimal.Decimal
	ShippingFee  decimal.Decimal
	FreeShipping bool
	IsActive     bool
	SortOrder    int
}

// Contains reports whether amount falls within the tier's band.
func (t Tier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	if t.MaxAmount != nil && amount.GreaterThanOrEqual(*t.MaxAmount) {
		return false
	}
	return true
}

// Fee returns the tier's shipping cost, zero for free-shipping tiers.
func (t Tier) Fee() decimal.Decimal {
	if t.FreeShipping {
		return decimal.Zero
	}
	return t.ShippingFee
}

// Repository provides the active tier set, sorted ascending by MinAmount.
type Repository interface {
	ListActive(ctx context.Context) ([]Tier, error)
}

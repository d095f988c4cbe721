package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Quote is the full shipping picture for an order amount: the fee the
// customer pays plus everything the storefront needs to render "spend X more
// for free shipping" hints.
type Quote struct {
	Fee          decimal.Decimal
	FreeShipping bool
	Tier         *Tier
	Message      string

	// MaxShippingFee is the highest non-free fee across active tiers,
	// shown as the crossed-out "original price" in the UI.
	MaxShippingFee *decimal.Decimal
	// FreeShippingThreshold is the smallest MinAmount of a free tier.
	FreeShippingThreshold *decimal.Decimal
	// AmountNeededForFreeShipping is max(0, threshold − amount) when a
	// threshold exists.
	AmountNeededForFreeShipping *decimal.Decimal
	// NextTier is the first tier whose MinAmount exceeds the amount.
	NextTier *Tier
}

// Resolver picks the applicable fee band for an order amount.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve computes the Quote for the given amount. With no active tiers
// configured, shipping is free. When the amount exceeds every band, the band
// with the largest MinAmount applies.
func (r *Resolver) Resolve(ctx context.Context, amount decimal.Decimal) (*Quote, error) {
	tiers, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active shipping tiers")
	}

	if len(tiers) == 0 {
		return &Quote{
			Fee:          decimal.Zero,
			FreeShipping: true,
			Message:      "no tiers configured",
		}, nil
	}

	q := &Quote{}
	q.Tier = pickTier(tiers, amount)
	if q.Tier == nil {
		// Amount below every band; charge nothing rather than guess.
		q.Fee = decimal.Zero
		q.FreeShipping = true
		q.Message = "no applicable tier"
	} else {
		q.Fee = q.Tier.Fee()
		q.FreeShipping = q.Tier.FreeShipping || q.Fee.IsZero()
		if q.FreeShipping {
			q.Message = "free shipping: " + q.Tier.Name
		} else {
			q.Message = q.Tier.Name
		}
	}

	fillHints(q, tiers, amount)
	return q, nil
}

// pickTier finds the band containing amount, falling back to the highest band
// when the amount overshoots all of them. Tiers are sorted by MinAmount.
func pickTier(tiers []Tier, amount decimal.Decimal) *Tier {
	for i := range tiers {
		if tiers[i].Contains(amount) {
			return &tiers[i]
		}
	}

	last := &tiers[len(tiers)-1]
	if amount.GreaterThanOrEqual(last.MinAmount) {
		return last
	}
	return nil
}

func fillHints(q *Quote, tiers []Tier, amount decimal.Decimal) {
	maxFee := decimal.Zero
	for _, t := range tiers {
		if !t.FreeShipping && t.ShippingFee.GreaterThan(maxFee) {
			maxFee = t.ShippingFee
		}
	}
	if maxFee.IsPositive() {
		q.MaxShippingFee = &maxFee
	}

	for _, t := range tiers {
		if !t.FreeShipping {
			continue
		}
		if q.FreeShippingThreshold == nil || t.MinAmount.LessThan(*q.FreeShippingThreshold) {
			min := t.MinAmount
			q.FreeShippingThreshold = &min
		}
	}

	if q.FreeShippingThreshold != nil {
		needed := q.FreeShippingThreshold.Sub(amount)
		if needed.IsNegative() {
			needed = decimal.Zero
		}
		q.AmountNeededForFreeShipping = &needed
	}

	for i := range tiers {
		if tiers[i].MinAmount.GreaterThan(amount) {
			q.NextTier = &tiers[i]
			break
		}
	}
}

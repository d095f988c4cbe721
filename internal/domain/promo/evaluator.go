package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result holds the outcome of validating a code against an order amount.
type Result struct {
	Valid   bool
	Amount  decimal.Decimal
	Message string
	Code    *Code
}

// Evaluator validates promo codes against order amounts and computes the
// resulting discount. It performs no mutation; usage recording happens inside
// the order transaction.
type Evaluator struct {
	repo   Repository
	filter *CodeFilter
	now    func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given repository. The
// optional filter short-circuits lookups for codes that cannot exist.
func NewEvaluator(repo Repository, filter *CodeFilter) *Evaluator {
	return &Evaluator{repo: repo, filter: filter, now: time.Now}
}

// Validate checks a code against the rules in order: existence, active flag,
// validity window, usage limit, minimum order amount. The first failing check
// wins. On success the computed discount amount is returned.
func (e *Evaluator) Validate(ctx context.Context, code string, orderAmount decimal.Decimal) (*Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if e.filter != nil && !e.filter.MayContain(code) {
		return nil, ErrNotFound
	}

	pc, err := e.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}

	if err := e.checkEligibility(pc, orderAmount); err != nil {
		return nil, err
	}

	amount := Compute(pc, orderAmount)
	return &Result{
		Valid:   true,
		Amount:  amount,
		Message: "promo code applied",
		Code:    pc,
	}, nil
}

// checkEligibility applies the non-monetary rules. Naive timestamps are
// treated as UTC throughout.
func (e *Evaluator) checkEligibility(pc *Code, orderAmount decimal.Decimal) error {
	if !pc.IsActive {
		return ErrInactive
	}

	now := e.now().UTC()
	if pc.StartDate != nil && now.Before(pc.StartDate.UTC()) {
		return ErrNotStarted
	}
	if pc.EndDate != nil && now.After(pc.EndDate.UTC()) {
		return ErrExpired
	}

	if pc.UsageLimit != nil && pc.UsedCount >= *pc.UsageLimit {
		return ErrUsageLimitReached
	}

	if pc.MinOrderAmount != nil && orderAmount.LessThan(*pc.MinOrderAmount) {
		return ErrMinOrderAmount
	}

	return nil
}

// Compute returns the discount a code grants against the given amount.
// Percentage discounts are rounded to the nearest whole unit before clamping;
// historical orders depend on this rounding, do not change it.
func Compute(pc *Code, amount decimal.Decimal) decimal.Decimal {
	switch pc.Type {
	case TypePercentage:
		d := amount.Mul(pc.Value).Div(hundred).Round(0)
		return decimal.Min(d, amount)
	case TypeAmount:
		return decimal.Min(pc.Value, amount)
	case TypeFreeShipping:
		// The effect is applied in the shipping stage.
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported promo discount strategies.
type Type string

const (
	// TypePercentage applies a percentage-based discount to the subtotal.
	TypePercentage Type = "percentage"
	// TypeAmount applies a fixed monetary discount capped at the subtotal.
	TypeAmount Type = "amount"
	// TypeFreeShipping waives the shipping fee; the discount amount is zero.
	TypeFreeShipping Type = "free_shipping"
)

var (
	// ErrNotFound is returned when a promo code does not exist.
	ErrNotFound = errors.New("promo code not found")
	// ErrInactive is returned when a promo code has been disabled.
	ErrInactive = errors.New("promo code is disabled")
	// ErrNotStarted is returned when a promo code's window has not opened yet.
	ErrNotStarted = errors.New("promo code is not active yet")
	// ErrExpired is returned when a promo code's window has closed.
	ErrExpired = errors.New("promo code has expired")
	// ErrUsageLimitReached is returned when a promo code has no uses left.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
	// ErrMinOrderAmount is returned when the order does not meet the
	// promo code's minimum amount requirement.
	ErrMinOrderAmount = errors.New("order amount below promo code minimum")
	// ErrExhausted is returned when the conditional usage increment loses the
	// race for the last remaining slot during order assembly.
	ErrExhausted = errors.New("promo code usage limit reached")
)

// Code defines a promo code's discount behaviour and eligibility constraints.
// Codes are stored upper-cased; lookups normalize the input.
type Code struct {
	ID             int64
	Code           string
	Name           string
	Type           Type
	Value          decimal.Decimal
	StartDate      *time.Time
	EndDate        *time.Time
	UsageLimit     *int
	UsedCount      int
	MinOrderAmount *decimal.Decimal
	IsActive       bool
}

// Usage is the append-only record of one promo code redemption. Exactly one
// row exists per order that used a code.
type Usage struct {
	ID             int64
	PromoCodeID    int64
	OrderID        int64
	UserID         *int64
	PromoAmount    decimal.Decimal
	OriginalAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	UsedAt         time.Time
}

// Repository provides lookup of promo codes. Usage consumption lives on the
// transactional order repository because it must commit atomically with the
// order row.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
	ListCodes(ctx context.Context) ([]string, error)
}

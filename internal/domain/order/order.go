package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/product"
	"github.com/lumenshop/checkout/internal/domain/promo"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Method identifies a payment provider.
type Method string

const (
	MethodTransfer Method = "transfer"
	MethodLinePay  Method = "linepay"
	MethodECPay    Method = "ecpay"
	MethodPayPal   Method = "paypal"
)

// ParseMethod validates a payment method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodTransfer, MethodLinePay, MethodECPay, MethodPayPal:
		return Method(s), nil
	}
	return "", errors.Errorf("unsupported payment method: %q", s)
}

// Sentinel errors for order operations.
var (
	ErrNotFound          = errors.New("order not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNumberTaken  = errors.New("order number already exists")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrNotPaid           = errors.New("order is not paid")
	ErrCancelNotAllowed  = errors.New("order cannot be cancelled")
	ErrRefundAmount      = errors.New("refund amount out of range")
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// OutOfStockError indicates insufficient stock at assembly time.
type OutOfStockError struct {
	ProductID   int64
	ProductName string
	Available   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %q out of stock: %d available", e.ProductName, e.Available)
}

// ProductUnavailableError indicates a cart product is missing or inactive.
type ProductUnavailableError struct {
	ProductID int64
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d unavailable", e.ProductID)
}

// Item is one order line with the product name and unit price snapshotted at
// assembly time. Later catalog edits never change historical orders.
type Item struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
}

// Order is the root aggregate of the checkout core.
type Order struct {
	ID          int64
	OrderNumber string
	UserID      *int64

	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string

	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	TotalAmount    decimal.Decimal

	Status        Status
	PaymentMethod *Method
	PaymentStatus PaymentStatus
	PaymentInfo   json.RawMessage

	Notes string

	Items []Item

	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaymentUpdatedAt *time.Time
}

// Tx is the set of statements available inside one order-assembly
// transaction. LockProduct takes a row-level lock that serializes concurrent
// assemblies touching the same product.
type Tx interface {
	LockProduct(ctx context.Context, id int64) (*product.Product, error)
	DecrementStock(ctx context.Context, id int64, qty int) error
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	// ConsumePromoUse performs the conditional used_count increment and
	// returns promo.ErrExhausted when no uses remain.
	ConsumePromoUse(ctx context.Context, promoCodeID int64) error
	InsertPromoUsage(ctx context.Context, u *promo.Usage) error
}

// Repository defines persistence for orders.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, error)
	// UpdatePayment persists the payment columns after a state transition.
	UpdatePayment(ctx context.Context, o *Order) error
	// UpdateStatus persists a fulfilment status change.
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// RestoreStock returns order item quantities to the product rows,
	// used when an unpaid order is cancelled.
	RestoreStock(ctx context.Context, orderID int64) error
}

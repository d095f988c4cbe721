// Package payment orchestrates payment intent creation and provider
// callbacks for bank transfer, LINE Pay, ECPay and PayPal.
package payment

import (
	"context"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/settings"
)

// Sentinel errors for the payment flow.
var (
	ErrMethodDisabled   = errors.New("payment method disabled")
	ErrUnknownMethod    = errors.New("unknown payment method")
	ErrInvalidSignature = errors.New("invalid callback signature")
	ErrProviderDeclined = errors.New("payment declined by provider")
)

// Intent is what a provider hands back when a payment is initiated. Exactly
// one of RedirectURL, FormAction or BankInfo is set depending on the flow.
type Intent struct {
	Method      order.Method
	RedirectURL string
	FormAction  string
	FormFields  map[string]string
	BankInfo *settings.TransferInfo
	// Note is a customer-facing instruction, such as what to write in a
	// bank transfer memo.
	Note        string
	ProviderRef string
	// Info is merged into the order's payment_info blob.
	Info map[string]any
}

// CallbackResult is the outcome of verifying a provider callback or return.
type CallbackResult struct {
	OrderNumber string
	Succeeded   bool
	ProviderRef string
	// Info is merged into the order's payment_info blob.
	Info map[string]any
	// Ack is the body the provider expects in response, if any.
	Ack         string
	RedirectURL string
}

// Provider implements one payment method.
type Provider interface {
	Method() order.Method
	CreateIntent(ctx context.Context, o *order.Order, cfg settings.Payments) (*Intent, error)
	// VerifyCallback authenticates a provider callback or customer return
	// and, for providers that require it, performs the confirm or capture
	// call before reporting the result.
	VerifyCallback(ctx context.Context, vals url.Values, cfg settings.Payments) (*CallbackResult, error)
}

// Orchestrator routes payment operations to the configured providers and
// applies the results to orders.
type Orchestrator struct {
	settings  *settings.Service
	orders    *order.Service
	providers map[order.Method]Provider
}

func NewOrchestrator(s *settings.Service, orders *order.Service, providers ...Provider) *Orchestrator {
	byMethod := make(map[order.Method]Provider, len(providers))
	for _, p := range providers {
		byMethod[p.Method()] = p
	}
	return &Orchestrator{settings: s, orders: orders, providers: byMethod}
}

func enabled(cfg settings.Payments, m order.Method) bool {
	switch m {
	case order.MethodTransfer:
		return cfg.TransferEnabled
	case order.MethodLinePay:
		return cfg.LinePay.Enabled
	case order.MethodECPay:
		return cfg.ECPay.Enabled
	case order.MethodPayPal:
		return cfg.PayPal.Enabled
	}
	return false
}

// EnabledMethods lists the methods a customer can currently choose.
func (po *Orchestrator) EnabledMethods(ctx context.Context) ([]order.Method, error) {
	cfg, err := po.settings.Payments(ctx)
	if err != nil {
		return nil, err
	}
	all := []order.Method{order.MethodTransfer, order.MethodLinePay, order.MethodECPay, order.MethodPayPal}
	out := make([]order.Method, 0, len(all))
	for _, m := range all {
		if _, ok := po.providers[m]; ok && enabled(cfg, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// CreateIntent initiates payment for an order. The order must already be
// committed; this runs strictly outside the assembly transaction.
func (po *Orchestrator) CreateIntent(ctx context.Context, o *order.Order, m order.Method) (*Intent, error) {
	cfg, err := po.settings.Payments(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := po.providers[m]
	if !ok {
		return nil, ErrUnknownMethod
	}
	if !enabled(cfg, m) {
		return nil, ErrMethodDisabled
	}
	intent, err := p.CreateIntent(ctx, o, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s intent", m)
	}
	if err := po.orders.SetPaymentPending(ctx, o, m, intent.Info); err != nil {
		return nil, errors.Wrap(err, "record pending payment")
	}
	zctx.From(ctx).Info("Payment intent created",
		zap.String("order_number", o.OrderNumber),
		zap.String("method", string(m)),
		zap.String("provider_ref", intent.ProviderRef),
	)
	return intent, nil
}

// TestIntent builds a one-unit intent against the configured provider without
// touching any order. It exercises the provider's credentials and endpoint so
// an admin can verify connectivity before enabling a method for customers.
func (po *Orchestrator) TestIntent(ctx context.Context, m order.Method) (*Intent, error) {
	cfg, err := po.settings.Payments(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := po.providers[m]
	if !ok {
		return nil, ErrUnknownMethod
	}
	if !enabled(cfg, m) {
		return nil, ErrMethodDisabled
	}
	one := decimal.NewFromInt(1)
	o := &order.Order{
		OrderNumber: "TEST" + time.Now().UTC().Format("20060102150405"),
		Subtotal:    one,
		TotalAmount: one,
		Items: []order.Item{
			{ProductName: "Connectivity test", ProductPrice: one, Quantity: 1},
		},
	}
	intent, err := p.CreateIntent(ctx, o, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "test %s intent", m)
	}
	zctx.From(ctx).Info("Payment connectivity test passed",
		zap.String("method", string(m)),
		zap.String("provider_ref", intent.ProviderRef),
	)
	return intent, nil
}

// HandleCallback verifies a provider callback and transitions the order. A
// replayed callback on an order already in the target state is a no-op.
func (po *Orchestrator) HandleCallback(ctx context.Context, m order.Method, vals url.Values) (*CallbackResult, error) {
	cfg, err := po.settings.Payments(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := po.providers[m]
	if !ok {
		return nil, ErrUnknownMethod
	}
	res, err := p.VerifyCallback(ctx, vals, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "verify %s callback", m)
	}
	lg := zctx.From(ctx).With(
		zap.String("order_number", res.OrderNumber),
		zap.String("method", string(m)),
	)
	if res.Succeeded {
		if _, err := po.orders.MarkPaid(ctx, res.OrderNumber, res.Info); err != nil {
			return nil, errors.Wrap(err, "mark paid")
		}
		lg.Info("Payment confirmed", zap.String("provider_ref", res.ProviderRef))
	} else {
		if _, err := po.orders.MarkFailed(ctx, res.OrderNumber, res.Info); err != nil {
			return nil, errors.Wrap(err, "mark failed")
		}
		lg.Warn("Payment failed", zap.String("provider_ref", res.ProviderRef))
	}
	return res, nil
}

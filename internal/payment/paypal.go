package payment

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/plutov/paypal/v4"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/settings"
)

// PayPal implements checkout through the PayPal Orders v2 API. The customer
// approves the order on PayPal and the capture happens when they return.
type PayPal struct {
	orders Orders

	mu       sync.Mutex
	client   *paypal.Client
	clientID string
	live     bool
}

var _ Provider = (*PayPal)(nil)

func NewPayPal(orders Orders) *PayPal {
	return &PayPal{orders: orders}
}

func (*PayPal) Method() order.Method { return order.MethodPayPal }

func (p *PayPal) clientFor(cfg settings.PayPalConfig) (*paypal.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.clientID == cfg.ClientID && p.live == cfg.Live() {
		return p.client, nil
	}
	base := paypal.APIBaseSandBox
	if cfg.Live() {
		base = paypal.APIBaseLive
	}
	c, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, errors.Wrap(err, "init paypal client")
	}
	p.client = c
	p.clientID = cfg.ClientID
	p.live = cfg.Live()
	return c, nil
}

// currencyValue formats the order total for the PayPal API. Zero-decimal
// currencies must not carry fraction digits.
func currencyValue(currency string, o *order.Order) string {
	switch currency {
	case "TWD", "JPY", "KRW":
		return o.TotalAmount.Round(0).StringFixed(0)
	}
	return o.TotalAmount.StringFixed(2)
}

func (p *PayPal) CreateIntent(ctx context.Context, o *order.Order, cfg settings.Payments) (*Intent, error) {
	c, err := p.clientFor(cfg.PayPal)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, errors.Wrap(err, "paypal access token")
	}

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: o.OrderNumber,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: cfg.Currency,
			Value:    currencyValue(cfg.Currency, o),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		ReturnURL: cfg.ReturnBaseURL + "/api/payment/confirm/paypal?order=" + url.QueryEscape(o.OrderNumber),
		CancelURL: cfg.ReturnBaseURL + "/api/payment/confirm/paypal?order=" + url.QueryEscape(o.OrderNumber) + "&cancel=1",
	}
	created, err := c.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, errors.Wrap(err, "create paypal order")
	}

	var approveURL string
	for _, l := range created.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
			break
		}
	}
	if approveURL == "" {
		return nil, errors.New("paypal response missing approve link")
	}
	return &Intent{
		Method:      order.MethodPayPal,
		RedirectURL: approveURL,
		ProviderRef: created.ID,
		Info: map[string]any{
			"paypal_order_id": created.ID,
		},
	}, nil
}

// VerifyCallback captures the approved PayPal order when the customer
// returns with the token query parameter.
func (p *PayPal) VerifyCallback(ctx context.Context, vals url.Values, cfg settings.Payments) (*CallbackResult, error) {
	number := vals.Get("order")
	if number == "" {
		return nil, errors.New("missing order reference")
	}
	if vals.Get("cancel") != "" {
		return &CallbackResult{
			OrderNumber: number,
			Succeeded:   false,
			Info: map[string]any{
				"cancelled_at": time.Now().UTC().Format(time.RFC3339),
			},
		}, nil
	}
	token := vals.Get("token")
	if token == "" {
		return nil, errors.New("missing token")
	}
	if _, err := p.orders.GetByNumber(ctx, number); err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	c, err := p.clientFor(cfg.PayPal)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, errors.Wrap(err, "paypal access token")
	}
	captured, err := c.CaptureOrder(ctx, token, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "capture paypal order")
	}

	return &CallbackResult{
		OrderNumber: number,
		Succeeded:   captured.Status == "COMPLETED",
		ProviderRef: captured.ID,
		Info: map[string]any{
			"paypal_order_id": captured.ID,
			"capture_status":  captured.Status,
			"verified_at":     time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenshop/checkout/internal/domain/auth"
	"github.com/lumenshop/checkout/internal/domain/cart"
	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/domain/product"
	"github.com/lumenshop/checkout/internal/domain/promo"
	"github.com/lumenshop/checkout/internal/domain/shipping"
	"github.com/lumenshop/checkout/internal/payment"
	"github.com/lumenshop/checkout/internal/session"
	"github.com/lumenshop/checkout/internal/settings"
)

const testAdminKey = "test-admin-key"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubCatalog struct {
	products map[int64]*product.Product
}

func (c *stubCatalog) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (c *stubCatalog) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type stubPromoRepo struct {
	codes map[string]*promo.Code
}

func (r *stubPromoRepo) FindByCode(_ context.Context, code string) (*promo.Code, error) {
	if pc, ok := r.codes[code]; ok {
		return pc, nil
	}
	return nil, promo.ErrNotFound
}

func (r *stubPromoRepo) ListCodes(_ context.Context) ([]string, error) { return nil, nil }

type stubTierRepo struct {
	tiers []shipping.Tier
}

func (r *stubTierRepo) ListActive(_ context.Context) ([]shipping.Tier, error) {
	return r.tiers, nil
}

type stubSettingsRepo struct {
	rows map[string]json.RawMessage
}

func (r *stubSettingsRepo) Get(_ context.Context, key string) (json.RawMessage, error) {
	if v, ok := r.rows[key]; ok {
		return v, nil
	}
	return nil, settings.ErrNotFound
}

func (r *stubSettingsRepo) GetAll(_ context.Context) (map[string]json.RawMessage, error) {
	return r.rows, nil
}

func (r *stubSettingsRepo) Set(_ context.Context, key string, value json.RawMessage) error {
	r.rows[key] = value
	return nil
}

type stubKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (r *stubKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if info, ok := r.keys[hash]; ok {
		return info, nil
	}
	return nil, errors.New("api key not found")
}

// stubOrderRepo is an in-memory order.Repository shared by the order service
// and the payment orchestrator.
type stubOrderRepo struct {
	catalog *stubCatalog
	orders  map[int64]*order.Order
	nextID  int64
	usages  []*promo.Usage
}

func (r *stubOrderRepo) InTx(_ context.Context, fn func(tx order.Tx) error) error {
	return fn(&stubOrderTx{repo: r})
}

func (r *stubOrderRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	if o, ok := r.orders[id]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (r *stubOrderRepo) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *stubOrderRepo) ListByUser(_ context.Context, userID int64, _, _ int) ([]order.Order, error) {
	var out []order.Order
	for _, o := range r.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) UpdatePayment(_ context.Context, o *order.Order) error {
	r.orders[o.ID] = o
	return nil
}

func (r *stubOrderRepo) UpdateStatus(_ context.Context, id int64, status order.Status) error {
	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (r *stubOrderRepo) RestoreStock(_ context.Context, orderID int64) error {
	o, ok := r.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	for _, it := range o.Items {
		if p, ok := r.catalog.products[it.ProductID]; ok {
			p.StockQuantity += it.Quantity
		}
	}
	return nil
}

type stubOrderTx struct {
	repo *stubOrderRepo
}

func (t *stubOrderTx) LockProduct(_ context.Context, id int64) (*product.Product, error) {
	p, ok := t.repo.catalog.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (t *stubOrderTx) DecrementStock(_ context.Context, id int64, qty int) error {
	t.repo.catalog.products[id].StockQuantity -= qty
	return nil
}

func (t *stubOrderTx) InsertOrder(_ context.Context, o *order.Order) error {
	t.repo.nextID++
	o.ID = t.repo.nextID
	t.repo.orders[o.ID] = o
	return nil
}

func (t *stubOrderTx) InsertItems(_ context.Context, _ int64, _ []order.Item) error { return nil }

func (t *stubOrderTx) ConsumePromoUse(_ context.Context, _ int64) error { return nil }

func (t *stubOrderTx) InsertPromoUsage(_ context.Context, u *promo.Usage) error {
	t.repo.usages = append(t.repo.usages, u)
	return nil
}

const (
	ecpayHashKey = "5294y06JbISpM5x9"
	ecpayHashIV  = "v77hoKGq4kWxNNIS"
)

// ecpaySignature computes the CheckMacValue the way ECPay's servers do, so
// the webhook test exercises the real verification path.
func ecpaySignature(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "CheckMacValue" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	raw := "HashKey=" + ecpayHashKey
	for _, k := range keys {
		raw += "&" + k + "=" + params[k]
	}
	raw += "&HashIV=" + ecpayHashIV

	encoded := strings.ToLower(url.QueryEscape(raw))
	encoded = strings.NewReplacer(
		"%2d", "-", "%5f", "_", "%2e", ".", "%21", "!",
		"%2a", "*", "%28", "(", "%29", ")",
	).Replace(encoded)

	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func newTestHandler(t *testing.T) (*Handler, *stubOrderRepo) {
	t.Helper()

	catalog := &stubCatalog{products: map[int64]*product.Product{
		1: {ID: 1, Name: "beans", Price: dec("250"), StockQuantity: 10, IsActive: true},
		2: {ID: 2, Name: "grinder", Price: dec("1200"), StockQuantity: 3, IsActive: true},
	}}
	promos := promo.NewEvaluator(&stubPromoRepo{codes: map[string]*promo.Code{
		"SAVE10": {
			ID: 7, Code: "SAVE10", Name: "Ten percent off",
			Type: promo.TypePercentage, Value: dec("10"), IsActive: true,
		},
	}}, nil)
	maxStandard := dec("1000")
	shipRes := shipping.NewResolver(&stubTierRepo{tiers: []shipping.Tier{
		{ID: 1, Name: "standard", MaxAmount: &maxStandard, ShippingFee: dec("60")},
		{ID: 2, Name: "free over 1000", MinAmount: dec("1000"), FreeShipping: true},
	}})

	settingsSvc := settings.NewService(&stubSettingsRepo{rows: map[string]json.RawMessage{
		settings.KeyTransferEnabled: json.RawMessage(`true`),
		settings.KeyECPayEnabled:    json.RawMessage(`true`),
		settings.KeyTransferDetails: json.RawMessage(`{"bank_name": "First Bank", "bank_code": "007", "account_number": "123-456-789", "account_name": "Lumen Shop Co."}`),
		settings.KeyECPayDetails:    json.RawMessage(`{"merchant_id": "2000132", "hash_key": "` + ecpayHashKey + `", "hash_iv": "` + ecpayHashIV + `"}`),
	}}, settings.Payments{
		Currency:      "TWD",
		ReturnBaseURL: "https://shop.example.com",
	})

	orderRepo := &stubOrderRepo{catalog: catalog, orders: make(map[int64]*order.Order)}
	orderSvc := order.NewService(orderRepo, promos, shipRes)
	cartSvc := cart.NewService(session.NewMemory(time.Hour), catalog, promos)
	po := payment.NewOrchestrator(settingsSvc, orderSvc,
		payment.NewTransfer(),
		payment.NewECPay(),
	)

	keyHash := sha256.Sum256([]byte(testAdminKey))
	keys := &stubKeyRepo{keys: map[string]*auth.APIKeyInfo{
		hex.EncodeToString(keyHash[:]): {
			ID:      "5f9f0b52-0000-0000-0000-000000000001",
			KeyHash: hex.EncodeToString(keyHash[:]),
			Name:    "test-admin",
			Scopes:  []string{auth.ScopeAdmin},
		},
	}}

	h := NewHandler(cartSvc, orderSvc, promos, shipRes, po, settingsSvc, keys)
	return h, orderRepo
}

// client drives the mux while carrying the session cookie across requests.
type client struct {
	t      *testing.T
	mux    *http.ServeMux
	cookie *http.Cookie
	admin  bool
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.admin {
		req.Header.Set("X-API-Key", testAdminKey)
	}
	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "session_id" {
			c.cookie = ck
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCartEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	rec := c.do(http.MethodPost, "/api/cart/add", map[string]any{"product_id": 1, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[cartResponse](t, rec)
	assert.Equal(t, 2, view.TotalItems)
	assert.True(t, view.Subtotal.Equal(dec("500")))

	// The session cookie keeps the cart across requests.
	rec = c.do(http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[cartResponse](t, rec)
	assert.Equal(t, 2, view.TotalItems)

	rec = c.do(http.MethodPost, "/api/cart/add", map[string]any{"product_id": 1, "quantity": 99})
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[errorResponse](t, rec)
	assert.Equal(t, codeOutOfStock, errResp.Error.Code)
	assert.EqualValues(t, 10, errResp.Error.Details["available"])

	rec = c.do(http.MethodPost, "/api/cart/promo", map[string]any{"code": "SAVE10"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[cartResponse](t, rec)
	require.NotNil(t, view.Promo)
	assert.Equal(t, "SAVE10", view.Promo.Code)
	assert.True(t, view.DiscountAmount.Equal(dec("50")))

	rec = c.do(http.MethodPost, "/api/cart/promo", map[string]any{"code": "NOPE"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp = decode[errorResponse](t, rec)
	assert.Equal(t, codePromoInvalid, errResp.Error.Code)
}

func TestCreateOrder(t *testing.T) {
	h, repo := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	rec := c.do(http.MethodPost, "/api/cart/add", map[string]any{"product_id": 1, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodPost, "/api/orders", map[string]any{
		"customer_name":    "Lin",
		"customer_email":   "lin@example.com",
		"shipping_address": "1 Main St",
		"payment_method":   "transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[createOrderResponse](t, rec)

	assert.Regexp(t, `^ORD\d{8}-[0-9A-F]{8}$`, resp.Order.OrderNumber)
	assert.True(t, resp.Order.Subtotal.Equal(dec("500")))
	assert.True(t, resp.Order.ShippingFee.Equal(dec("60")))
	assert.True(t, resp.Order.TotalAmount.Equal(dec("560")))
	assert.Equal(t, "pending", resp.Order.PaymentStatus)
	require.NotNil(t, resp.Payment)
	require.NotNil(t, resp.Payment.BankInfo)
	assert.Equal(t, "First Bank", resp.Payment.BankInfo.BankName)
	assert.Nil(t, resp.PaymentError)

	// Stock was decremented and the cart cleared.
	o, err := repo.GetByNumber(context.Background(), resp.Order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)

	rec = c.do(http.MethodGet, "/api/cart", nil)
	view := decode[cartResponse](t, rec)
	assert.Equal(t, 0, view.TotalItems)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	h, _ := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	rec := c.do(http.MethodPost, "/api/orders", map[string]any{
		"customer_name":    "Lin",
		"customer_email":   "lin@example.com",
		"shipping_address": "1 Main St",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuestOrderAccess(t *testing.T) {
	h, _ := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	c.do(http.MethodPost, "/api/cart/add", map[string]any{"product_id": 1, "quantity": 1})
	rec := c.do(http.MethodPost, "/api/orders", map[string]any{
		"customer_name":    "Lin",
		"customer_email":   "lin@example.com",
		"shipping_address": "1 Main St",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	number := decode[createOrderResponse](t, rec).Order.OrderNumber

	rec = c.do(http.MethodGet, "/api/orders/"+number, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodGet, "/api/orders/"+number+"?email=lin@example.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A wrong email looks identical to a missing order.
	rec = c.do(http.MethodPost, "/api/orders/lookup", map[string]any{
		"order_number": number, "email": "other@example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	rec := c.do(http.MethodGet, "/api/orders?user_id=1", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?user_id=1", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec2 := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	c.admin = true
	rec = c.do(http.MethodGet, "/api/orders?user_id=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualConfirmAndRefund(t *testing.T) {
	h, _ := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	c.do(http.MethodPost, "/api/cart/add", map[string]any{"product_id": 1, "quantity": 1})
	rec := c.do(http.MethodPost, "/api/orders", map[string]any{
		"customer_name":    "Lin",
		"customer_email":   "lin@example.com",
		"shipping_address": "1 Main St",
		"payment_method":   "transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	number := decode[createOrderResponse](t, rec).Order.OrderNumber

	c.admin = true
	rec = c.do(http.MethodPost, "/api/payment/manual-confirm", map[string]any{
		"order_number": number, "notes": "slip checked",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paid", decode[orderResponse](t, rec).PaymentStatus)

	// Confirming twice conflicts.
	rec = c.do(http.MethodPost, "/api/payment/manual-confirm", map[string]any{
		"order_number": number,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.do(http.MethodPost, "/api/payment/refund", map[string]any{
		"order_number": number, "amount": "310", "reason": "damaged",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "refunded", decode[orderResponse](t, rec).PaymentStatus)
}

func TestPaymentConnectivityCheck(t *testing.T) {
	h, _ := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	rec := c.do(http.MethodGet, "/api/payment/test/transfer", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c.admin = true
	rec = c.do(http.MethodGet, "/api/payment/test/transfer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		OK     bool                   `json:"ok"`
		Method string                 `json:"method"`
		Intent *paymentIntentResponse `json:"intent"`
	}](t, rec)
	assert.True(t, body.OK)
	assert.Equal(t, "transfer", body.Method)
	require.NotNil(t, body.Intent)
	require.NotNil(t, body.Intent.BankInfo)
	assert.Equal(t, "First Bank", body.Intent.BankInfo.BankName)
	assert.NotEmpty(t, body.Intent.Note)

	// No LINE Pay provider is wired here.
	rec = c.do(http.MethodGet, "/api/payment/test/linepay", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/api/payment/test/bitcoin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhookECPay(t *testing.T) {
	h, repo := newTestHandler(t)
	c := &client{t: t, mux: h.Routes()}

	c.do(http.MethodPost, "/api/cart/add", map[string]any{"product_id": 2, "quantity": 1})
	rec := c.do(http.MethodPost, "/api/orders", map[string]any{
		"customer_name":    "Lin",
		"customer_email":   "lin@example.com",
		"shipping_address": "1 Main St",
		"payment_method":   "ecpay",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[createOrderResponse](t, rec)
	number := created.Order.OrderNumber

	// Deliver the server notification to the exact URL the intent handed
	// to ECPay.
	require.NotNil(t, created.Payment)
	returnURL, err := url.Parse(created.Payment.FormFields["ReturnURL"])
	require.NoError(t, err)
	require.Equal(t, "/api/payment/webhook/ecpay", returnURL.Path)

	webhook := func(vals url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, returnURL.Path,
			strings.NewReader(vals.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		return rec
	}

	params := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": strings.ReplaceAll(number, "-", ""),
		"TradeNo":         "2506151200001234",
		"RtnCode":         "1",
		"RtnMsg":          "Succeeded",
		"CustomField1":    number,
	}
	sign := func(p map[string]string) url.Values {
		vals := url.Values{}
		for k, v := range p {
			vals.Set(k, v)
		}
		vals.Set("CheckMacValue", ecpaySignature(p))
		return vals
	}

	res := webhook(sign(params))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "1|OK", res.Body.String())

	o, err := repo.GetByNumber(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)

	// Replay still acks without changing state.
	res = webhook(sign(params))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "1|OK", res.Body.String())

	// Tampered notification is rejected.
	bad := sign(params)
	bad.Set("RtnCode", "0")
	res = webhook(bad)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, codeSignatureMismatch, decode[errorResponse](t, res).Error.Code)

	rec = c.do(http.MethodGet, "/api/payment/status/"+number, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, "paid", status["payment_status"])
	assert.Equal(t, "ecpay", status["payment_method"])
}

func TestProviderReturnPathsRouted(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := h.Routes()

	// Paths the payment providers embed in redirect and notification URLs
	// must resolve to a registered handler.
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/payment/webhook/ecpay"},
		{http.MethodGet, "/api/payment/confirm/linepay"},
		{http.MethodGet, "/api/payment/confirm/paypal"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		_, pattern := mux.Handler(req)
		assert.NotEmpty(t, pattern, "%s %s is not routed", p.method, p.path)
	}
}

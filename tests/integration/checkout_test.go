//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"strings"
	"testing"
)

const testAPIKey = "integration-test-key"

var orderNumberPattern = regexp.MustCompile(`^ORD\d{8}-[0-9A-F]{8}$`)

type cartMutation struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	ShippingAddress string `json:"shipping_address"`
	PromoCode       string `json:"promo_code,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
}

func TestCart_AddAndPromo(t *testing.T) {
	newSession(t)

	// 2x Single-Origin Beans at the 399 sale price.
	resp := doPost(t, "/api/cart/add", cartMutation{ProductID: 2, Quantity: 2})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	cart := decodeJSON[cartResponse](t, resp)
	if cart.Subtotal != "798" {
		t.Errorf("subtotal: got %s, want 798", cart.Subtotal)
	}

	resp = doPost(t, "/api/cart/promo", map[string]string{"code": "SAVE10"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	cart = decodeJSON[cartResponse](t, resp)
	// 10% of 798 is 79.8, rounded to 80.
	if cart.DiscountAmount != "80" {
		t.Errorf("discount: got %s, want 80", cart.DiscountAmount)
	}
	if cart.Total != "718" {
		t.Errorf("total: got %s, want 718", cart.Total)
	}
}

func TestCart_PromoBelowMinimum(t *testing.T) {
	newSession(t)

	resp := doPost(t, "/api/cart/add", cartMutation{ProductID: 6, Quantity: 1}) // 150
	resp.Body.Close()

	resp = doPost(t, "/api/cart/promo", map[string]string{"code": "WELCOME100"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Error.Code != "PROMO_INVALID" {
		t.Errorf("code: got %s, want PROMO_INVALID", body.Error.Code)
	}
}

func TestCart_OutOfStock(t *testing.T) {
	newSession(t)

	// Gooseneck Kettle has 12 in stock.
	resp := doPost(t, "/api/cart/add", cartMutation{ProductID: 5, Quantity: 13})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Error.Code != "OUT_OF_STOCK" {
		t.Errorf("code: got %s, want OUT_OF_STOCK", body.Error.Code)
	}
	if body.Error.Details["available"] != float64(12) {
		t.Errorf("available: got %v, want 12", body.Error.Details["available"])
	}
}

func TestCheckout_TransferFlow(t *testing.T) {
	newSession(t)

	resp := doPost(t, "/api/cart/add", cartMutation{ProductID: 2, Quantity: 1}) // 399
	resp.Body.Close()

	resp = doPost(t, "/api/orders", createOrderRequest{
		CustomerName:    "Integration Tester",
		CustomerEmail:   "tester@example.com",
		ShippingAddress: "1 Test Street",
		PaymentMethod:   "transfer",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[createOrderResponse](t, resp)

	if !orderNumberPattern.MatchString(created.Order.OrderNumber) {
		t.Errorf("order number %q does not match pattern", created.Order.OrderNumber)
	}
	// 399 + 60 shipping below the free threshold.
	if created.Order.TotalAmount != "459" {
		t.Errorf("total: got %s, want 459", created.Order.TotalAmount)
	}
	if created.Order.PaymentStatus != "pending" {
		t.Errorf("payment status: got %s, want pending", created.Order.PaymentStatus)
	}
	if created.Payment == nil || created.Payment.BankInfo == nil {
		t.Fatalf("expected bank info in payment intent")
	}
	if !strings.Contains(created.Payment.Note, created.Order.OrderNumber) {
		t.Errorf("transfer note %q does not mention the order number", created.Payment.Note)
	}

	// The cart is cleared after checkout.
	cartResp := doGet(t, "/api/cart")
	defer cartResp.Body.Close()
	cart := decodeJSON[cartResponse](t, cartResp)
	if cart.TotalItems != 0 {
		t.Errorf("cart not cleared: %d items", cart.TotalItems)
	}

	number := created.Order.OrderNumber

	// Guest access requires the order email.
	guestResp := doGet(t, "/api/orders/"+number+"?email=tester@example.com")
	defer guestResp.Body.Close()
	if guestResp.StatusCode != http.StatusOK {
		t.Fatalf("guest get: expected 200, got %d", guestResp.StatusCode)
	}

	wrongResp := doPost(t, "/api/orders/lookup", map[string]string{
		"order_number": number, "email": "other@example.com",
	})
	defer wrongResp.Body.Close()
	if wrongResp.StatusCode != http.StatusNotFound {
		t.Fatalf("wrong email lookup: expected 404, got %d", wrongResp.StatusCode)
	}

	// Operator confirms the transfer, then refunds it.
	confirmResp := doPostWithAuth(t, "/api/payment/manual-confirm", map[string]string{
		"order_number": number, "notes": "slip verified",
	}, testAPIKey)
	defer confirmResp.Body.Close()
	if confirmResp.StatusCode != http.StatusOK {
		t.Fatalf("manual confirm: expected 200, got %d", confirmResp.StatusCode)
	}
	confirmed := decodeJSON[orderResponse](t, confirmResp)
	if confirmed.PaymentStatus != "paid" {
		t.Errorf("payment status: got %s, want paid", confirmed.PaymentStatus)
	}

	refundResp := doPostWithAuth(t, "/api/payment/refund", map[string]string{
		"order_number": number, "amount": "459", "reason": "integration test",
	}, testAPIKey)
	defer refundResp.Body.Close()
	if refundResp.StatusCode != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d", refundResp.StatusCode)
	}
	refunded := decodeJSON[orderResponse](t, refundResp)
	if refunded.PaymentStatus != "refunded" {
		t.Errorf("payment status: got %s, want refunded", refunded.PaymentStatus)
	}
}

func TestCheckout_FreeShippingThreshold(t *testing.T) {
	newSession(t)

	resp := doPost(t, "/api/cart/add", cartMutation{ProductID: 1, Quantity: 1}) // 1280
	resp.Body.Close()

	resp = doPost(t, "/api/orders", createOrderRequest{
		CustomerName:    "Integration Tester",
		CustomerEmail:   "tester@example.com",
		ShippingAddress: "1 Test Street",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[createOrderResponse](t, resp)
	if created.Order.ShippingFee != "0" {
		t.Errorf("shipping fee: got %s, want 0", created.Order.ShippingFee)
	}
	if created.Order.TotalAmount != "1280" {
		t.Errorf("total: got %s, want 1280", created.Order.TotalAmount)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	newSession(t)

	resp := doPost(t, "/api/orders", createOrderRequest{
		CustomerName:    "Integration Tester",
		CustomerEmail:   "tester@example.com",
		ShippingAddress: "1 Test Street",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAdmin_Unauthorized(t *testing.T) {
	resp := doPostWithAuth(t, "/api/payment/manual-confirm", map[string]string{
		"order_number": "ORD20250615-00000000",
	}, "wrong-key")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPaymentMethods(t *testing.T) {
	resp := doGet(t, "/api/payment/methods")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeJSON[struct {
		Methods []string `json:"methods"`
	}](t, resp)
	if len(body.Methods) != 1 || body.Methods[0] != "transfer" {
		t.Errorf("methods: got %v, want [transfer]", body.Methods)
	}
}

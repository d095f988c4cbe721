// Package api implements the HTTP surface of the checkout service.
package api

import (
	"net/http"

	"github.com/lumenshop/checkout/internal/domain/auth"
	"github.com/lumenshop/checkout/internal/domain/cart"
	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/domain/promo"
	"github.com/lumenshop/checkout/internal/domain/shipping"
	"github.com/lumenshop/checkout/internal/payment"
	"github.com/lumenshop/checkout/internal/settings"
)

// Handler carries the services the HTTP endpoints dispatch to.
type Handler struct {
	carts    *cart.Service
	orders   *order.Service
	promos   *promo.Evaluator
	shipping *shipping.Resolver
	payments *payment.Orchestrator
	settings *settings.Service
	apikeys  auth.Repository
}

func NewHandler(
	carts *cart.Service,
	orders *order.Service,
	promos *promo.Evaluator,
	shipRes *shipping.Resolver,
	payments *payment.Orchestrator,
	sett *settings.Service,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		promos:   promos,
		shipping: shipRes,
		payments: payments,
		settings: sett,
		apikeys:  apikeys,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/add", h.addToCart)
	mux.HandleFunc("POST /api/cart/update", h.updateCart)
	mux.HandleFunc("POST /api/cart/remove", h.removeFromCart)
	mux.HandleFunc("POST /api/cart/clear", h.clearCart)
	mux.HandleFunc("POST /api/cart/promo", h.applyCartPromo)
	mux.HandleFunc("DELETE /api/cart/promo", h.removeCartPromo)

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.requireAdmin(h.listOrders))
	mux.HandleFunc("GET /api/orders/{number}", h.getOrder)
	mux.HandleFunc("POST /api/orders/lookup", h.lookupOrder)
	mux.HandleFunc("PATCH /api/orders/{number}/status", h.requireAdmin(h.updateOrderStatus))

	mux.HandleFunc("POST /api/promo/validate", h.validatePromo)
	mux.HandleFunc("POST /api/shipping/calculate", h.calculateShipping)

	mux.HandleFunc("GET /api/payment/methods", h.paymentMethods)
	mux.HandleFunc("POST /api/payment/create", h.createPayment)
	mux.HandleFunc("GET /api/payment/status/{number}", h.paymentStatus)
	mux.HandleFunc("POST /api/payment/confirm/{method}", h.paymentConfirm)
	mux.HandleFunc("GET /api/payment/confirm/{method}", h.paymentConfirm)
	mux.HandleFunc("POST /api/payment/webhook/{method}", h.paymentWebhook)
	mux.HandleFunc("GET /api/payment/test/{method}", h.requireAdmin(h.testPayment))
	mux.HandleFunc("POST /api/payment/manual-confirm", h.requireAdmin(h.manualConfirm))
	mux.HandleFunc("POST /api/payment/refund", h.requireAdmin(h.refundPayment))

	return mux
}

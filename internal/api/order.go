package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/order"
)

type orderItemResponse struct {
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
}

type orderResponse struct {
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentMethod   *string             `json:"payment_method,omitempty"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerPhone   string              `json:"customer_phone,omitempty"`
	ShippingAddress string              `json:"shipping_address"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	ShippingFee     decimal.Decimal     `json:"shipping_fee"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Items           []orderItemResponse `json:"items"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.ShippingAddress,
		Subtotal:        o.Subtotal,
		DiscountAmount:  o.DiscountAmount,
		ShippingFee:     o.ShippingFee,
		TotalAmount:     o.TotalAmount,
		Items:           make([]orderItemResponse, 0, len(o.Items)),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
	}
	if o.PaymentMethod != nil {
		m := string(*o.PaymentMethod)
		resp.PaymentMethod = &m
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductPrice: it.ProductPrice,
			Quantity:     it.Quantity,
		})
	}
	return resp
}

type createOrderRequest struct {
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes"`
	PromoCode       string `json:"promo_code"`
	PaymentMethod   string `json:"payment_method"`
}

type createOrderResponse struct {
	Order        orderResponse          `json:"order"`
	Payment      *paymentIntentResponse `json:"payment,omitempty"`
	PaymentError *errorBody             `json:"payment_error,omitempty"`
}

// createOrder assembles an order from the session cart. When a payment
// method is supplied the intent is created after the order commit; a
// provider failure then still returns the created order together with the
// payment error so the client can retry or pick another method.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if req.CustomerName == "" || req.CustomerEmail == "" || req.ShippingAddress == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "customer name, email and shipping address are required")
		return
	}
	var method order.Method
	if req.PaymentMethod != "" {
		m, err := order.ParseMethod(req.PaymentMethod)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "unsupported payment method")
			return
		}
		method = m
	}

	sid := sessionID(w, r)
	c, err := h.carts.Load(r.Context(), sid)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	lines := make([]order.Line, 0, len(c.Entries))
	for _, e := range c.Entries {
		lines = append(lines, order.Line{ProductID: e.ProductID, Quantity: e.Quantity})
	}
	promoCode := req.PromoCode
	if promoCode == "" && c.Promo != nil {
		promoCode = c.Promo.Code
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		PromoCode:       promoCode,
		Lines:           lines,
	})
	if err != nil {
		respondOrderError(w, r, err)
		return
	}
	if err := h.carts.Clear(r.Context(), sid); err != nil {
		respondInternal(w, r, err)
		return
	}

	resp := createOrderResponse{Order: toOrderResponse(o)}
	if method != "" {
		intent, err := h.payments.CreateIntent(r.Context(), o, method)
		if err != nil {
			resp.PaymentError = paymentErrorBody(err)
		} else {
			resp.Payment = toPaymentIntentResponse(intent)
			resp.Order.PaymentStatus = string(o.PaymentStatus)
			m := string(method)
			resp.Order.PaymentMethod = &m
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// getOrder serves one order. Admin keys see everything; guests must supply
// the email the order was placed with.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if h.isAdmin(r) {
		o, err := h.orders.GetByNumber(r.Context(), number)
		if err != nil {
			respondOrderError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(o))
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "email required")
		return
	}
	o, err := h.orders.GetGuestOrder(r.Context(), number, email)
	if err != nil {
		respondOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) lookupOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber string `json:"order_number"`
		Email       string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil || req.OrderNumber == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "order_number and email are required")
		return
	}
	o, err := h.orders.GetGuestOrder(r.Context(), req.OrderNumber, req.Email)
	if err != nil {
		respondOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, err := h.orders.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for i := range list {
		out = append(out, toOrderResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	status := order.Status(req.Status)
	switch status {
	case order.StatusPending, order.StatusConfirmed, order.StatusShipped,
		order.StatusDelivered, order.StatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, codeBadRequest, "unknown status")
		return
	}
	o, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		respondOrderError(w, r, err)
		return
	}
	updated, err := h.orders.UpdateStatus(r.Context(), o.ID, status)
	if err != nil {
		if errors.Is(err, order.ErrCancelNotAllowed) {
			writeError(w, http.StatusConflict, codeBadRequest, "paid orders must be refunded before cancelling")
			return
		}
		respondOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

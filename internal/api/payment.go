package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/payment"
	"github.com/lumenshop/checkout/internal/settings"
)

type paymentIntentResponse struct {
	Method      string                 `json:"method"`
	RedirectURL string                 `json:"redirect_url,omitempty"`
	FormAction  string                 `json:"form_action,omitempty"`
	FormFields  map[string]string      `json:"form_fields,omitempty"`
	BankInfo    *settings.TransferInfo `json:"bank_info,omitempty"`
	Note        string                 `json:"note,omitempty"`
	ProviderRef string                 `json:"provider_ref,omitempty"`
}

func toPaymentIntentResponse(in *payment.Intent) *paymentIntentResponse {
	return &paymentIntentResponse{
		Method:      string(in.Method),
		RedirectURL: in.RedirectURL,
		FormAction:  in.FormAction,
		FormFields:  in.FormFields,
		BankInfo:    in.BankInfo,
		Note:        in.Note,
		ProviderRef: in.ProviderRef,
	}
}

// paymentErrorBody maps a post-commit intent failure into the error payload
// embedded in the order creation response.
func paymentErrorBody(err error) *errorBody {
	switch {
	case errors.Is(err, payment.ErrUnknownMethod):
		return &errorBody{Code: codeBadRequest, Message: "unknown payment method"}
	case errors.Is(err, payment.ErrMethodDisabled):
		return &errorBody{Code: codeBadRequest, Message: "payment method disabled"}
	default:
		return &errorBody{Code: codePaymentProvider, Message: "payment provider error"}
	}
}

func (h *Handler) paymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.payments.EnabledMethods(r.Context())
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, string(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": out})
}

// testPayment builds a throwaway one-unit intent against the configured
// provider so an admin can check credentials and reachability. Nothing is
// persisted and no order is touched.
func (h *Handler) testPayment(w http.ResponseWriter, r *http.Request) {
	method, err := order.ParseMethod(r.PathValue("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unsupported payment method")
		return
	}
	intent, err := h.payments.TestIntent(r.Context(), method)
	if err != nil {
		respondPaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"method": string(method),
		"intent": toPaymentIntentResponse(intent),
	})
}

// createPayment creates an intent for an existing order, used when the
// customer deferred the method choice or retries after a failure.
func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber   string `json:"order_number"`
		PaymentMethod string `json:"payment_method"`
	}
	if err := decodeBody(r, &req); err != nil || req.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "order_number and payment_method are required")
		return
	}
	method, err := order.ParseMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unsupported payment method")
		return
	}
	o, err := h.orders.GetByNumber(r.Context(), req.OrderNumber)
	if err != nil {
		respondPaymentError(w, r, err)
		return
	}
	if o.PaymentStatus == order.PaymentPaid || o.PaymentStatus == order.PaymentRefunded {
		writeError(w, http.StatusConflict, codeBadRequest, "order already settled")
		return
	}
	intent, err := h.payments.CreateIntent(r.Context(), o, method)
	if err != nil {
		respondPaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentIntentResponse(intent))
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		respondOrderError(w, r, err)
		return
	}
	resp := map[string]any{
		"order_number":   o.OrderNumber,
		"payment_status": string(o.PaymentStatus),
	}
	if o.PaymentMethod != nil {
		resp["payment_method"] = string(*o.PaymentMethod)
	}
	if o.PaymentUpdatedAt != nil {
		resp["payment_updated_at"] = o.PaymentUpdatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// callbackValues merges query and form parameters; providers deliver
// results either way.
func callbackValues(r *http.Request) (url.Values, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	vals := url.Values{}
	for k, v := range r.Form {
		vals[k] = v
	}
	return vals, nil
}

// paymentConfirm handles the customer returning from a redirect-flow
// provider. The provider package performs the confirm or capture call.
func (h *Handler) paymentConfirm(w http.ResponseWriter, r *http.Request) {
	method, err := order.ParseMethod(r.PathValue("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unsupported payment method")
		return
	}
	vals, err := callbackValues(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "malformed callback")
		return
	}
	res, err := h.payments.HandleCallback(r.Context(), method, vals)
	if err != nil {
		respondPaymentError(w, r, err)
		return
	}
	status := order.PaymentFailed
	if res.Succeeded {
		status = order.PaymentPaid
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_number":   res.OrderNumber,
		"payment_status": string(status),
	})
}

// paymentWebhook handles server-to-server result notifications. The body of
// the response is whatever acknowledgement the provider protocol expects;
// verification failures answer non-2xx so the provider retries.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	method, err := order.ParseMethod(r.PathValue("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unsupported payment method")
		return
	}
	vals, err := callbackValues(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "malformed callback")
		return
	}
	res, err := h.payments.HandleCallback(r.Context(), method, vals)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, codeSignatureMismatch, "callback verification failed")
			return
		}
		respondPaymentError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if res.Ack != "" {
		_, _ = w.Write([]byte(res.Ack))
	}
}

func (h *Handler) manualConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber string `json:"order_number"`
		Notes       string `json:"notes"`
	}
	if err := decodeBody(r, &req); err != nil || req.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "order_number is required")
		return
	}
	o, err := h.orders.ManualConfirm(r.Context(), req.OrderNumber, adminName(r), req.Notes)
	if err != nil {
		respondPaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber string          `json:"order_number"`
		Amount      decimal.Decimal `json:"amount"`
		Reason      string          `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil || req.OrderNumber == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "order_number is required")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "amount must be positive")
		return
	}
	o, err := h.orders.Refund(r.Context(), req.OrderNumber, req.Amount, req.Reason, adminName(r))
	if err != nil {
		respondPaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

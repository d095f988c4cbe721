package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/domain/product"
	"github.com/lumenshop/checkout/internal/domain/promo"
	"github.com/lumenshop/checkout/internal/payment"
)

// Error codes surfaced to clients.
const (
	codeBadRequest         = "BAD_REQUEST"
	codeNotFound           = "NOT_FOUND"
	codeUnauthorized       = "UNAUTHORIZED"
	codeProductUnavailable = "PRODUCT_UNAVAILABLE"
	codeOutOfStock         = "OUT_OF_STOCK"
	codePromoInvalid       = "PROMO_INVALID"
	codePromoExhausted     = "PROMO_EXHAUSTED"
	codePaymentProvider    = "PAYMENT_PROVIDER_ERROR"
	codeSignatureMismatch  = "SIGNATURE_MISMATCH"
	codeInternal           = "INTERNAL"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message, Details: details}})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondOrderError maps order assembly failures onto the error contract.
func respondOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var oos *order.OutOfStockError
	var unavailable *order.ProductUnavailableError
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, codeBadRequest, "cart is empty")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
	case errors.As(err, &oos):
		writeErrorDetails(w, http.StatusConflict, codeOutOfStock, oos.Error(), map[string]any{
			"product_id": oos.ProductID,
			"available":  oos.Available,
		})
	case errors.As(err, &unavailable), errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusConflict, codeProductUnavailable, "product unavailable")
	case errors.Is(err, promo.ErrExhausted):
		writeError(w, http.StatusConflict, codePromoExhausted, "usage limit reached")
	case isPromoValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, codePromoInvalid, promoMessage(err))
	default:
		respondInternal(w, r, err)
	}
}

func isPromoValidationError(err error) bool {
	for _, target := range []error{
		promo.ErrNotFound, promo.ErrInactive, promo.ErrNotStarted,
		promo.ErrExpired, promo.ErrUsageLimitReached, promo.ErrMinOrderAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func promoMessage(err error) string {
	switch {
	case errors.Is(err, promo.ErrNotFound):
		return "promo code not found"
	case errors.Is(err, promo.ErrInactive):
		return "promo code is not active"
	case errors.Is(err, promo.ErrNotStarted):
		return "promo code is not yet valid"
	case errors.Is(err, promo.ErrExpired):
		return "promo code has expired"
	case errors.Is(err, promo.ErrUsageLimitReached):
		return "usage limit reached"
	case errors.Is(err, promo.ErrMinOrderAmount):
		return "order amount below the promo minimum"
	}
	return "promo code invalid"
}

// respondPaymentError maps payment failures onto the error contract.
func respondPaymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payment.ErrUnknownMethod):
		writeError(w, http.StatusBadRequest, codeBadRequest, "unknown payment method")
	case errors.Is(err, payment.ErrMethodDisabled):
		writeError(w, http.StatusBadRequest, codeBadRequest, "payment method disabled")
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, codeSignatureMismatch, "callback verification failed")
	case errors.Is(err, payment.ErrProviderDeclined):
		writeError(w, http.StatusBadGateway, codePaymentProvider, "payment provider declined the request")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
	case errors.Is(err, order.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, codeBadRequest, "order already paid")
	case errors.Is(err, order.ErrNotPaid):
		writeError(w, http.StatusConflict, codeBadRequest, "order is not paid")
	case errors.Is(err, order.ErrRefundAmount):
		writeError(w, http.StatusBadRequest, codeBadRequest, "refund amount out of range")
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, codeBadRequest, "payment status transition not allowed")
	default:
		respondInternal(w, r, err)
	}
}

func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

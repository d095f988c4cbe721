package api

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type validatePromoRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

type validatePromoResponse struct {
	IsValid     bool            `json:"is_valid"`
	PromoAmount decimal.Decimal `json:"promo_amount"`
	Message     string          `json:"message,omitempty"`
	PromoType   string          `json:"promo_type,omitempty"`
}

// validatePromo checks a code against an order amount without consuming a
// use. Validation failures are part of the contract, so they come back as
// 200 with is_valid=false rather than as errors.
func (h *Handler) validatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "code is required")
		return
	}
	if req.OrderAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "order_amount must not be negative")
		return
	}
	res, err := h.promos.Validate(r.Context(), req.Code, req.OrderAmount)
	if err != nil {
		if isPromoValidationError(err) {
			writeJSON(w, http.StatusOK, validatePromoResponse{
				IsValid:     false,
				PromoAmount: decimal.Zero,
				Message:     promoMessage(err),
			})
			return
		}
		respondInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validatePromoResponse{
		IsValid:     true,
		PromoAmount: res.Amount,
		Message:     res.Message,
		PromoType:   string(res.Code.Type),
	})
}

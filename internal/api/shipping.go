package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/shipping"
)

type calculateShippingRequest struct {
	OrderAmount decimal.Decimal `json:"order_amount"`
}

type shippingTierResponse struct {
	Name         string           `json:"name"`
	MinAmount    decimal.Decimal  `json:"min_amount"`
	MaxAmount    *decimal.Decimal `json:"max_amount,omitempty"`
	ShippingFee  decimal.Decimal  `json:"shipping_fee"`
	FreeShipping bool             `json:"free_shipping"`
}

type calculateShippingResponse struct {
	ShippingFee                 decimal.Decimal       `json:"shipping_fee"`
	FreeShipping                bool                  `json:"free_shipping"`
	Tier                        *shippingTierResponse `json:"tier,omitempty"`
	Message                     string                `json:"message,omitempty"`
	MaxShippingFee              *decimal.Decimal      `json:"max_shipping_fee,omitempty"`
	FreeShippingThreshold       *decimal.Decimal      `json:"free_shipping_threshold,omitempty"`
	AmountNeededForFreeShipping *decimal.Decimal      `json:"amount_needed_for_free_shipping,omitempty"`
	NextTier                    *shippingTierResponse `json:"next_tier,omitempty"`
}

func toTierResponse(t *shipping.Tier) *shippingTierResponse {
	if t == nil {
		return nil
	}
	return &shippingTierResponse{
		Name:         t.Name,
		MinAmount:    t.MinAmount,
		MaxAmount:    t.MaxAmount,
		ShippingFee:  t.ShippingFee,
		FreeShipping: t.FreeShipping,
	}
}

func (h *Handler) calculateShipping(w http.ResponseWriter, r *http.Request) {
	var req calculateShippingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	if req.OrderAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "order_amount must not be negative")
		return
	}
	q, err := h.shipping.Resolve(r.Context(), req.OrderAmount)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculateShippingResponse{
		ShippingFee:                 q.Fee,
		FreeShipping:                q.FreeShipping,
		Tier:                        toTierResponse(q.Tier),
		Message:                     q.Message,
		MaxShippingFee:              q.MaxShippingFee,
		FreeShippingThreshold:       q.FreeShippingThreshold,
		AmountNeededForFreeShipping: q.AmountNeededForFreeShipping,
		NextTier:                    toTierResponse(q.NextTier),
	})
}

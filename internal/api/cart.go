package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/cart"
)

type cartItemResponse struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type cartPromoResponse struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type cartResponse struct {
	Items          []cartItemResponse `json:"items"`
	TotalItems     int                `json:"total_items"`
	Subtotal       decimal.Decimal    `json:"subtotal"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	Total          decimal.Decimal    `json:"total"`
	Promo          *cartPromoResponse `json:"promo,omitempty"`
}

func toCartResponse(v *cart.View) cartResponse {
	resp := cartResponse{
		Items:          make([]cartItemResponse, 0, len(v.Items)),
		TotalItems:     v.TotalItems,
		Subtotal:       v.Subtotal,
		DiscountAmount: v.DiscountAmount,
		Total:          v.Total,
	}
	for _, it := range v.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			UnitPrice: it.Product.CurrentPrice(),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		})
	}
	if v.Promo != nil {
		resp.Promo = &cartPromoResponse{
			Code:           v.Promo.Code,
			Name:           v.Promo.Name,
			Type:           v.Promo.Type,
			DiscountAmount: v.Promo.DiscountAmount,
		}
	}
	return resp
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, sid string) {
	view, err := h.carts.List(r.Context(), sid)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, sessionID(w, r))
}

type cartMutationRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func respondCartError(w http.ResponseWriter, r *http.Request, err error) {
	var oos *cart.OutOfStockError
	switch {
	case errors.Is(err, cart.ErrProductUnavailable):
		writeError(w, http.StatusConflict, codeProductUnavailable, "product unavailable")
	case errors.Is(err, cart.ErrNotInCart):
		writeError(w, http.StatusNotFound, codeNotFound, "product not in cart")
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeBadRequest, "quantity must be greater than 0")
	case errors.As(err, &oos):
		writeErrorDetails(w, http.StatusConflict, codeOutOfStock, oos.Error(), map[string]any{
			"product_id": oos.ProductID,
			"available":  oos.Available,
		})
	case isPromoValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, codePromoInvalid, promoMessage(err))
	default:
		respondInternal(w, r, err)
	}
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	sid := sessionID(w, r)
	if _, err := h.carts.Add(r.Context(), sid, req.ProductID, req.Quantity); err != nil {
		respondCartError(w, r, err)
		return
	}
	h.respondCart(w, r, sid)
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	var req cartMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	sid := sessionID(w, r)
	if _, err := h.carts.Update(r.Context(), sid, req.ProductID, req.Quantity); err != nil {
		respondCartError(w, r, err)
		return
	}
	h.respondCart(w, r, sid)
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	sid := sessionID(w, r)
	if err := h.carts.Remove(r.Context(), sid, req.ProductID); err != nil {
		respondCartError(w, r, err)
		return
	}
	h.respondCart(w, r, sid)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	if err := h.carts.Clear(r.Context(), sid); err != nil {
		respondInternal(w, r, err)
		return
	}
	h.respondCart(w, r, sid)
}

func (h *Handler) applyCartPromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	sid := sessionID(w, r)
	view, err := h.carts.ApplyPromo(r.Context(), sid, req.Code)
	if err != nil {
		respondCartError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *Handler) removeCartPromo(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	if err := h.carts.RemovePromo(r.Context(), sid); err != nil {
		respondInternal(w, r, err)
		return
	}
	h.respondCart(w, r, sid)
}

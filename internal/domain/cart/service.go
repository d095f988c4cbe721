package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/product"
	"github.com/lumenshop/checkout/internal/domain/promo"
)

// Sentinel errors for cart mutations.
var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrNotInCart          = errors.New("product not in cart")
	ErrInvalidQuantity    = errors.New("quantity must be greater than 0")
)

// OutOfStockError indicates the requested quantity exceeds available stock.
type OutOfStockError struct {
	ProductID int64
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d out of stock: %d available", e.ProductID, e.Available)
}

// Service implements the session cart operations. All stock checks are
// advisory; the authoritative check happens under row locks during order
// assembly.
type Service struct {
	store    Store
	products product.Repository
	promos   *promo.Evaluator
}

// NewService creates a cart Service.
func NewService(store Store, products product.Repository, promos *promo.Evaluator) *Service {
	return &Service{store: store, products: products, promos: promos}
}

// Add puts qty more units of a product into the session cart.
func (s *Service) Add(ctx context.Context, sessionID string, productID int64, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	next := c.Get(productID) + qty
	if next > p.StockQuantity {
		return nil, &OutOfStockError{ProductID: productID, Available: p.StockQuantity}
	}
	c.Set(productID, next)

	if err := s.store.Put(ctx, sessionID, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Update replaces a product's quantity in the session cart.
func (s *Service) Update(ctx context.Context, sessionID string, productID int64, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if qty > p.StockQuantity {
		return nil, &OutOfStockError{ProductID: productID, Available: p.StockQuantity}
	}

	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c.Get(productID) == 0 {
		return nil, ErrNotInCart
	}
	c.Set(productID, qty)

	if err := s.store.Put(ctx, sessionID, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Remove deletes a product from the session cart.
func (s *Service) Remove(ctx context.Context, sessionID string, productID int64) error {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	if !c.Remove(productID) {
		return ErrNotInCart
	}
	if err := s.store.Put(ctx, sessionID, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// Clear drops the whole session cart, applied promo included.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Load returns the raw stored cart without resolving it against the
// catalog. Order assembly re-verifies every product under row locks anyway.
func (s *Service) Load(ctx context.Context, sessionID string) (*Cart, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return c, nil
}

// List resolves the cart against the live catalog. Entries whose product has
// vanished or gone inactive are dropped from the view silently; stored
// quantities are untouched.
func (s *Service) List(ctx context.Context, sessionID string) (*View, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return s.buildView(ctx, c)
}

// ApplyPromo validates a code against the current cart subtotal and stores
// the snapshot in the session.
func (s *Service) ApplyPromo(ctx context.Context, sessionID, code string) (*View, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	view, err := s.buildView(ctx, c)
	if err != nil {
		return nil, err
	}

	res, err := s.promos.Validate(ctx, code, view.Subtotal)
	if err != nil {
		return nil, err
	}

	c.Promo = &AppliedPromo{
		PromoCodeID:    res.Code.ID,
		Code:           res.Code.Code,
		Name:           res.Code.Name,
		Type:           string(res.Code.Type),
		Value:          res.Code.Value,
		DiscountAmount: res.Amount,
	}
	if err := s.store.Put(ctx, sessionID, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return s.buildView(ctx, c)
}

// RemovePromo drops the applied promo from the session.
func (s *Service) RemovePromo(ctx context.Context, sessionID string) error {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	c.Promo = nil
	if err := s.store.Put(ctx, sessionID, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

func (s *Service) activeProduct(ctx context.Context, productID int64) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, errors.Wrapf(err, "get product %d", productID)
	}
	if !p.IsActive {
		return nil, ErrProductUnavailable
	}
	return p, nil
}

func (s *Service) buildView(ctx context.Context, c *Cart) (*View, error) {
	view := &View{
		Subtotal: decimal.Zero,
		Promo:    c.Promo,
	}

	if len(c.Entries) > 0 {
		ids := make([]int64, len(c.Entries))
		for i, e := range c.Entries {
			ids[i] = e.ProductID
		}
		fetched, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get cart products")
		}

		byID := make(map[int64]product.Product, len(fetched))
		for _, p := range fetched {
			byID[p.ID] = p
		}

		for _, e := range c.Entries {
			p, ok := byID[e.ProductID]
			if !ok || !p.IsActive {
				continue
			}
			sub := p.CurrentPrice().Mul(decimal.NewFromInt(int64(e.Quantity))).Round(2)
			view.Items = append(view.Items, Item{Product: p, Quantity: e.Quantity, Subtotal: sub})
			view.TotalItems += e.Quantity
			view.Subtotal = view.Subtotal.Add(sub)
		}
	}

	if c.Promo != nil {
		view.DiscountAmount = decimal.Min(c.Promo.DiscountAmount, view.Subtotal)
	}
	view.Total = view.Subtotal.Sub(view.DiscountAmount)
	if view.Total.IsNegative() {
		view.Total = decimal.Zero
	}
	return view, nil
}

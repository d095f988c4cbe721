package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/internal/domain/pricing"
	"github.com/lumenshop/checkout/internal/domain/promo"
	"github.com/lumenshop/checkout/internal/domain/shipping"
)

const maxNumberRetries = 3

// Line is one requested order line.
type Line struct {
	ProductID int64
	Quantity  int
}

// CreateRequest carries everything needed to assemble an order.
type CreateRequest struct {
	UserID          *int64
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	Notes           string
	PromoCode       string
	Lines           []Line
}

// Service assembles orders and drives their payment state.
type Service struct {
	repo     Repository
	promos   *promo.Evaluator
	shipping *shipping.Resolver
	now      func() time.Time
}

func NewService(repo Repository, promos *promo.Evaluator, shipping *shipping.Resolver) *Service {
	return &Service{
		repo:     repo,
		promos:   promos,
		shipping: shipping,
		now:      time.Now,
	}
}

// Create assembles an order in a single transaction: it locks the product
// rows, verifies stock, validates the promo code, resolves the shipping tier
// and writes the order, its items, the stock decrements and the promo usage
// together. Payment intent creation happens strictly after commit.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, errors.Errorf("invalid quantity %d for product %d", l.Quantity, l.ProductID)
		}
	}
	lines := mergeLines(req.Lines)

	var created *Order
	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		o, err := s.assemble(ctx, req, lines)
		if errors.Is(err, ErrOrderNumberTaken) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		created = o
		break
	}
	if created == nil {
		return nil, errors.Wrap(lastErr, "generate unique order number")
	}
	return created, nil
}

func (s *Service) assemble(ctx context.Context, req CreateRequest, lines []Line) (*Order, error) {
	now := s.now().UTC()
	o := &Order{
		OrderNumber:     s.newOrderNumber(now),
		UserID:          req.UserID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Status:          StatusPending,
		PaymentStatus:   PaymentUnpaid,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.repo.InTx(ctx, func(tx Tx) error {
		priced := make([]pricing.Line, 0, len(lines))
		items := make([]Item, 0, len(lines))
		for _, l := range lines {
			p, err := tx.LockProduct(ctx, l.ProductID)
			if err != nil {
				return errors.Wrapf(err, "lock product %d", l.ProductID)
			}
			if !p.IsActive {
				return &ProductUnavailableError{ProductID: l.ProductID}
			}
			if p.StockQuantity < l.Quantity {
				return &OutOfStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Available:   p.StockQuantity,
				}
			}
			priced = append(priced, pricing.Line{Product: *p, Quantity: l.Quantity})
			items = append(items, Item{
				ProductID:    p.ID,
				ProductName:  p.Name,
				ProductPrice: p.CurrentPrice(),
				Quantity:     l.Quantity,
			})
		}

		subtotal := pricing.Subtotal(priced)

		var code *promo.Code
		var discount decimal.Decimal
		if req.PromoCode != "" {
			res, err := s.promos.Validate(ctx, req.PromoCode, subtotal)
			if err != nil {
				return errors.Wrap(err, "validate promo code")
			}
			code = res.Code
			discount = res.Amount
		}

		quote, err := s.shipping.Resolve(ctx, subtotal.Sub(discount))
		if err != nil {
			return errors.Wrap(err, "resolve shipping tier")
		}

		b := pricing.Compute(priced, code, quote)
		o.Subtotal = b.Subtotal
		o.DiscountAmount = b.DiscountAmount
		o.ShippingFee = b.ShippingFee
		o.TotalAmount = b.TotalAmount

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, o.ID, items); err != nil {
			return errors.Wrap(err, "insert order items")
		}
		for i := range items {
			items[i].OrderID = o.ID
		}
		o.Items = items

		for _, l := range lines {
			if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock for product %d", l.ProductID)
			}
		}

		if code != nil {
			if err := tx.ConsumePromoUse(ctx, code.ID); err != nil {
				return errors.Wrapf(err, "consume promo %s", code.Code)
			}
			usage := &promo.Usage{
				PromoCodeID:    code.ID,
				OrderID:        o.ID,
				UserID:         req.UserID,
				PromoAmount:    o.DiscountAmount,
				OriginalAmount: o.Subtotal,
				// Shipping is excluded from the recorded final amount.
				FinalAmount: o.Subtotal.Sub(o.DiscountAmount),
				UsedAt:      now,
			}
			if err := tx.InsertPromoUsage(ctx, usage); err != nil {
				return errors.Wrap(err, "record promo usage")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// mergeLines collapses duplicate product IDs and fixes the lock order so
// concurrent assemblies acquire row locks in the same sequence.
func mergeLines(in []Line) []Line {
	byID := make(map[int64]int, len(in))
	for _, l := range in {
		byID[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(byID))
	for id, qty := range byID {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// newOrderNumber builds ORD{YYYYMMDD}-{8 uppercase hex chars}.
func (s *Service) newOrderNumber(now time.Time) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return "ORD" + now.Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(buf[:]))
}

// GetByID loads one order with its items.
func (s *Service) GetByID(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByNumber loads one order by its public order number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetByNumber(ctx, number)
}

// ListByUser returns a page of the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// GetGuestOrder loads an order by number for a guest, verifying the email
// matches before revealing anything.
func (s *Service) GetGuestOrder(ctx context.Context, number, email string) (*Order, error) {
	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(email), o.CustomerEmail) {
		return nil, ErrNotFound
	}
	return o, nil
}

// SetPaymentPending records the chosen method when an intent is created.
func (s *Service) SetPaymentPending(ctx context.Context, o *Order, method Method, info map[string]any) error {
	if err := s.transition(o, PaymentPending); err != nil {
		return err
	}
	o.PaymentMethod = &method
	if err := s.mergeInfo(o, info); err != nil {
		return err
	}
	return s.repo.UpdatePayment(ctx, o)
}

// MarkPaid applies a successful payment result. Replaying a callback on an
// already paid order is a no-op.
func (s *Service) MarkPaid(ctx context.Context, number string, info map[string]any) (*Order, error) {
	return s.applyResult(ctx, number, PaymentPaid, info)
}

// MarkFailed applies a failed payment result.
func (s *Service) MarkFailed(ctx context.Context, number string, info map[string]any) (*Order, error) {
	return s.applyResult(ctx, number, PaymentFailed, info)
}

func (s *Service) applyResult(ctx context.Context, number string, to PaymentStatus, info map[string]any) (*Order, error) {
	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == to {
		return o, nil
	}
	if err := s.transition(o, to); err != nil {
		return nil, err
	}
	if err := s.mergeInfo(o, info); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePayment(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ManualConfirm lets an operator mark a transfer (or failed) payment as paid.
func (s *Service) ManualConfirm(ctx context.Context, number, confirmedBy, notes string) (*Order, error) {
	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if err := s.transition(o, PaymentPaid); err != nil {
		return nil, err
	}
	info := map[string]any{
		"manual_confirmed": true,
		"confirmed_by":     confirmedBy,
		"confirmed_at":     s.now().UTC().Format(time.RFC3339),
	}
	if notes != "" {
		info["notes"] = notes
	}
	if err := s.mergeInfo(o, info); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePayment(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Refund marks a paid order as refunded and records who did it and why.
func (s *Service) Refund(ctx context.Context, number string, amount decimal.Decimal, reason, refundedBy string) (*Order, error) {
	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != PaymentPaid && o.PaymentStatus != PaymentPartial {
		return nil, ErrNotPaid
	}
	if amount.IsZero() || amount.IsNegative() || amount.GreaterThan(o.TotalAmount) {
		return nil, errors.Wrapf(ErrRefundAmount, "%s outside (0, %s]", amount, o.TotalAmount)
	}
	if err := s.transition(o, PaymentRefunded); err != nil {
		return nil, err
	}
	info := map[string]any{
		"refunded":      true,
		"refund_amount": amount.String(),
		"refund_reason": reason,
		"refunded_by":   refundedBy,
		"refunded_at":   s.now().UTC().Format(time.RFC3339),
	}
	if err := s.mergeInfo(o, info); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePayment(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus applies an operator fulfilment status change. Cancelling an
// unpaid order restores its stock; paid orders must be refunded first.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == to {
		return o, nil
	}
	if to == StatusCancelled {
		if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentPartial {
			return nil, ErrCancelNotAllowed
		}
		if err := s.repo.RestoreStock(ctx, o.ID); err != nil {
			return nil, errors.Wrap(err, "restore stock")
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	o.Status = to
	return o, nil
}

func (s *Service) transition(o *Order, to PaymentStatus) error {
	if !o.PaymentStatus.CanTransition(to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.PaymentStatus, to)
	}
	o.PaymentStatus = to
	t := s.now().UTC()
	o.PaymentUpdatedAt = &t
	return nil
}

// mergeInfo overlays the given keys onto the stored payment_info blob.
// Existing keys not mentioned survive, so confirmation details accrete over
// the intent details instead of replacing them.
func (s *Service) mergeInfo(o *Order, info map[string]any) error {
	if len(info) == 0 {
		return nil
	}
	merged := make(map[string]json.RawMessage)
	if len(o.PaymentInfo) > 0 {
		if err := json.Unmarshal(o.PaymentInfo, &merged); err != nil {
			return errors.Wrap(err, "decode stored payment info")
		}
	}
	for k, v := range info {
		raw, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encode payment info key %q", k)
		}
		merged[k] = raw
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return errors.Wrap(err, "encode payment info")
	}
	o.PaymentInfo = out
	return nil
}

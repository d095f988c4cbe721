package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/domain/product"
	"github.com/lumenshop/checkout/internal/domain/promo"
)

const (
	sqlLockProduct = `SELECT id, name, price, sale_price, stock_quantity, is_active
		FROM products WHERE id = $1 FOR UPDATE`

	sqlDecrementStock = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1`

	sqlInsertOrder = `INSERT INTO orders (
			order_number, user_id, customer_name, customer_email, customer_phone, shipping_address,
			subtotal, discount_amount, shipping_fee, total_amount,
			status, payment_status, payment_info, notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`

	sqlInsertItem = `INSERT INTO order_items (order_id, product_id, product_name, product_price, quantity)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`

	// The guard keeps used_count from passing usage_limit under concurrency.
	sqlConsumePromoUse = `UPDATE promo_codes SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	sqlInsertPromoUsage = `INSERT INTO promo_usages (promo_code_id, order_id, user_id,
			promo_amount, original_amount, final_amount, used_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`

	sqlOrderColumns = `id, order_number, user_id, customer_name, customer_email, customer_phone,
		shipping_address, subtotal, discount_amount, shipping_fee, total_amount,
		status, payment_method, payment_status, payment_info, notes,
		created_at, updated_at, payment_updated_at`

	sqlOrderByID     = `SELECT ` + sqlOrderColumns + ` FROM orders WHERE id = $1`
	sqlOrderByNumber = `SELECT ` + sqlOrderColumns + ` FROM orders WHERE order_number = $1`
	sqlOrdersByUser  = `SELECT ` + sqlOrderColumns + ` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	sqlOrderItems = `SELECT id, order_id, product_id, product_name, product_price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id`

	sqlUpdatePayment = `UPDATE orders SET payment_method = $2, payment_status = $3,
			payment_info = $4, payment_updated_at = $5, updated_at = now()
		WHERE id = $1`

	sqlUpdateStatus = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	sqlRestoreStock = `UPDATE products p SET stock_quantity = p.stock_quantity + oi.quantity, updated_at = now()
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.product_id = p.id`
)

// Order is the pgx-backed order repository.
type Order struct {
	pool *pgxpool.Pool
}

var _ order.Repository = (*Order)(nil)

func NewOrder(pool *pgxpool.Pool) *Order {
	return &Order{pool: pool}
}

// InTx runs fn inside one transaction, rolling back on error.
func (r *Order) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	pgtx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&orderTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := t.tx.Query(ctx, sqlLockProduct, id)
	if err != nil {
		return nil, errors.Wrap(err, "lock product row")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan product")
	}
	return &p, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, id int64, qty int) error {
	_, err := t.tx.Exec(ctx, sqlDecrementStock, id, qty)
	return err
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, sqlInsertOrder,
		o.OrderNumber, o.UserID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.ShippingAddress,
		o.Subtotal, o.DiscountAmount, o.ShippingFee, o.TotalAmount,
		o.Status, o.PaymentStatus, o.PaymentInfo, o.Notes, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if isUniqueViolation(err, "orders_order_number_key") {
		return order.ErrOrderNumberTaken
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (t *orderTx) InsertItems(ctx context.Context, orderID int64, items []order.Item) error {
	for i := range items {
		it := &items[i]
		if err := t.tx.QueryRow(ctx, sqlInsertItem,
			orderID, it.ProductID, it.ProductName, it.ProductPrice, it.Quantity,
		).Scan(&it.ID); err != nil {
			return err
		}
		it.OrderID = orderID
	}
	return nil
}

func (t *orderTx) ConsumePromoUse(ctx context.Context, promoCodeID int64) error {
	tag, err := t.tx.Exec(ctx, sqlConsumePromoUse, promoCodeID)
	if err != nil {
		return errors.Wrap(err, "increment used count")
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrExhausted
	}
	return nil
}

func (t *orderTx) InsertPromoUsage(ctx context.Context, u *promo.Usage) error {
	return t.tx.QueryRow(ctx, sqlInsertPromoUsage,
		u.PromoCodeID, u.OrderID, u.UserID,
		u.PromoAmount, u.OriginalAmount, u.FinalAmount, u.UsedAt,
	).Scan(&u.ID)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &o.ShippingAddress, &o.Subtotal, &o.DiscountAmount,
		&o.ShippingFee, &o.TotalAmount, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.PaymentInfo, &o.Notes, &o.CreatedAt, &o.UpdatedAt, &o.PaymentUpdatedAt)
	return o, err
}

func (r *Order) getOne(ctx context.Context, query string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan order")
	}
	if err := r.loadItems(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Order) loadItems(ctx context.Context, o *order.Order) error {
	rows, err := r.pool.Query(ctx, sqlOrderItems, o.ID)
	if err != nil {
		return errors.Wrap(err, "query order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductPrice, &it.Quantity)
		return it, err
	})
	if err != nil {
		return errors.Wrap(err, "scan order items")
	}
	o.Items = items
	return nil
}

func (r *Order) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.getOne(ctx, sqlOrderByID, id)
}

func (r *Order) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, sqlOrderByNumber, number)
}

func (r *Order) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sqlOrdersByUser, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return out, nil
}

func (r *Order) UpdatePayment(ctx context.Context, o *order.Order) error {
	_, err := r.pool.Exec(ctx, sqlUpdatePayment,
		o.ID, o.PaymentMethod, o.PaymentStatus, o.PaymentInfo, o.PaymentUpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update payment")
	}
	return nil
}

func (r *Order) UpdateStatus(ctx context.Context, id int64, status order.Status) error {
	_, err := r.pool.Exec(ctx, sqlUpdateStatus, id, status)
	if err != nil {
		return errors.Wrap(err, "update status")
	}
	return nil
}

func (r *Order) RestoreStock(ctx context.Context, orderID int64) error {
	_, err := r.pool.Exec(ctx, sqlRestoreStock, orderID)
	if err != nil {
		return errors.Wrap(err, "restore stock")
	}
	return nil
}

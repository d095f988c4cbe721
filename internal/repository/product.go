package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenshop/checkout/internal/domain/product"
)

const (
	sqlProductColumns = `id, name, price, sale_price, stock_quantity, is_active`

	sqlProductByID  = `SELECT ` + sqlProductColumns + ` FROM products WHERE id = $1`
	sqlProductByIDs = `SELECT ` + sqlProductColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
)

// Product is the pgx-backed product repository.
type Product struct {
	pool *pgxpool.Pool
}

var _ product.Repository = (*Product)(nil)

func NewProduct(pool *pgxpool.Pool) *Product {
	return &Product{pool: pool}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.SalePrice, &p.StockQuantity, &p.IsActive)
	return p, err
}

func (r *Product) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sqlProductByID, id)
	if err != nil {
		return nil, errors.Wrap(err, "query product")
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

func (r *Product) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, sqlProductByIDs, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	out, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return out, nil
}

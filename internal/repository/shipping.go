package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenshop/checkout/internal/domain/shipping"
)

const sqlActiveTiers = `SELECT id, name, min_amount, max_amount, shipping_fee, free_shipping, is_active, sort_order
	FROM shipping_tiers
	WHERE is_active
	ORDER BY min_amount ASC, sort_order ASC`

// Shipping is the pgx-backed shipping tier repository.
type Shipping struct {
	pool *pgxpool.Pool
}

var _ shipping.Repository = (*Shipping)(nil)

func NewShipping(pool *pgxpool.Pool) *Shipping {
	return &Shipping{pool: pool}
}

func (r *Shipping) ListActive(ctx context.Context) ([]shipping.Tier, error) {
	rows, err := r.pool.Query(ctx, sqlActiveTiers)
	if err != nil {
		return nil, errors.Wrap(err, "query shipping tiers")
	}
	tiers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipping.Tier, error) {
		var t shipping.Tier
		err := row.Scan(&t.ID, &t.Name, &t.MinAmount, &t.MaxAmount, &t.ShippingFee,
			&t.FreeShipping, &t.IsActive, &t.SortOrder)
		return t, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan shipping tiers")
	}
	return tiers, nil
}

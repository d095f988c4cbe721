package repository

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenshop/checkout/internal/domain/promo"
)

const (
	sqlPromoColumns = `id, code, name, promo_type, promo_value, start_date, end_date,
		usage_limit, used_count, min_order_amount, is_active`

	sqlPromoByCode = `SELECT ` + sqlPromoColumns + ` FROM promo_codes WHERE code = $1`

	sqlPromoCodes = `SELECT code FROM promo_codes`
)

// Promo is the pgx-backed promo code repository.
type Promo struct {
	pool *pgxpool.Pool
}

var _ promo.Repository = (*Promo)(nil)

func NewPromo(pool *pgxpool.Pool) *Promo {
	return &Promo{pool: pool}
}

func scanPromo(row pgx.CollectableRow) (promo.Code, error) {
	var c promo.Code
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Type, &c.Value, &c.StartDate, &c.EndDate,
		&c.UsageLimit, &c.UsedCount, &c.MinOrderAmount, &c.IsActive)
	return c, err
}

func (r *Promo) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	rows, err := r.pool.Query(ctx, sqlPromoByCode, strings.ToUpper(code))
	if err != nil {
		return nil, errors.Wrap(err, "query promo code")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, promo.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan promo code")
	}
	return &c, nil
}

// ListCodes returns every stored code regardless of active state; the
// bloom prefilter guards existence only.
func (r *Promo) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, sqlPromoCodes)
	if err != nil {
		return nil, errors.Wrap(err, "query promo codes")
	}
	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan promo codes")
	}
	return codes, nil
}

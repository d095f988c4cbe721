package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenshop/checkout/internal/settings"
)

const (
	sqlSettingGet = `SELECT value FROM system_settings WHERE key = $1`

	sqlSettingAll = `SELECT key, value FROM system_settings`

	sqlSettingSet = `INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

// Settings is the pgx-backed system settings repository.
type Settings struct {
	pool *pgxpool.Pool
}

var _ settings.Repository = (*Settings)(nil)

func NewSettings(pool *pgxpool.Pool) *Settings {
	return &Settings{pool: pool}
}

func (r *Settings) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := r.pool.QueryRow(ctx, sqlSettingGet, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query setting")
	}
	return raw, nil
}

func (r *Settings) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.pool.Query(ctx, sqlSettingAll)
	if err != nil {
		return nil, errors.Wrap(err, "query settings")
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var raw json.RawMessage
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, errors.Wrap(err, "scan setting")
		}
		out[key] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate settings")
	}
	return out, nil
}

func (r *Settings) Set(ctx context.Context, key string, value json.RawMessage) error {
	if _, err := r.pool.Exec(ctx, sqlSettingSet, key, value); err != nil {
		return errors.Wrap(err, "upsert setting")
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenshop/checkout/internal/domain/auth"
)

const sqlAPIKeyByHash = `SELECT id, key_hash, name, scopes
	FROM api_keys WHERE key_hash = $1 AND active = TRUE`

var _ auth.Repository = (*APIKey)(nil)

// APIKey provides API key lookups backed by PostgreSQL.
type APIKey struct {
	pool *pgxpool.Pool
}

func NewAPIKey(pool *pgxpool.Pool) *APIKey {
	return &APIKey{pool: pool}
}

// FindByHash looks up an active API key by its SHA-256 hash.
func (r *APIKey) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, sqlAPIKeyByHash, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Scopes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("api key not found: %w", err)
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Package repository implements persistence over PostgreSQL using pgx.
package repository

import (
	"context"
	"io/fs"
	"sort"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewPool connects to PostgreSQL and registers decimal support so NUMERIC
// columns scan directly into shopspring decimals.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return pool, nil
}

// RunMigrations executes the embedded migration files in lexical order.
// The files are written to be idempotent, so replaying them on boot is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS) error {
	entries, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return errors.Wrap(err, "list migrations")
	}
	sort.Strings(entries)
	for _, name := range entries {
		raw, err := fs.ReadFile(migrations, name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		if _, err := pool.Exec(ctx, string(raw)); err != nil {
			return errors.Wrapf(err, "apply migration %s", name)
		}
		zctx.From(ctx).Info("Applied migration", zap.String("file", name))
	}
	return nil
}

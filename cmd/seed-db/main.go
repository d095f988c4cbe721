// Command seed-db prepares a database for local development: it applies the
// schema and loads sample products, shipping tiers, promo codes, payment
// settings and an admin API key.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lumenshop/checkout/db"
	"github.com/lumenshop/checkout/internal/repository"
)

type productJSON struct {
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	SalePrice     *decimal.Decimal `json:"sale_price"`
	StockQuantity int              `json:"stock_quantity"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool, db.Migrations); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedShippingTiers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping tiers")
	}
	if err := seedPromoCodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}
	if err := seedSettings(ctx, pool); err != nil {
		return errors.Wrap(err, "seed settings")
	}
	if err := seedAPIKey(ctx, pool, apiKey); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	const q = `INSERT INTO products (name, price, sale_price, stock_quantity, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT DO NOTHING`
	for _, p := range products {
		if _, err := pool.Exec(ctx, q, p.Name, p.Price, p.SalePrice, p.StockQuantity); err != nil {
			return errors.Wrapf(err, "insert product %q", p.Name)
		}
	}
	slog.Info("seeded products", slog.Int("count", len(products)))
	return nil
}

func seedShippingTiers(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `INSERT INTO shipping_tiers (name, min_amount, max_amount, shipping_fee, free_shipping, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT DO NOTHING`
	tiers := []struct {
		name      string
		min       string
		max       *string
		fee       string
		free      bool
		sortOrder int
	}{
		{"Standard", "0", ptr("1000"), "60", false, 1},
		{"Free over 1000", "1000", nil, "0", true, 2},
	}
	for _, t := range tiers {
		if _, err := pool.Exec(ctx, q, t.name, t.min, t.max, t.fee, t.free, t.sortOrder); err != nil {
			return errors.Wrapf(err, "insert tier %q", t.name)
		}
	}
	slog.Info("seeded shipping tiers", slog.Int("count", len(tiers)))
	return nil
}

func seedPromoCodes(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `INSERT INTO promo_codes (code, name, promo_type, promo_value, usage_limit, min_order_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (code) DO NOTHING`
	codes := []struct {
		code     string
		name     string
		kind     string
		value    string
		limit    *int
		minOrder *string
	}{
		{"SAVE10", "10% off", "percentage", "10", nil, nil},
		{"WELCOME100", "100 off first order", "amount", "100", ptrInt(1000), ptr("500")},
		{"FREESHIP", "Free shipping", "free_shipping", "0", nil, nil},
	}
	for _, c := range codes {
		if _, err := pool.Exec(ctx, q, c.code, c.name, c.kind, c.value, c.limit, c.minOrder); err != nil {
			return errors.Wrapf(err, "insert promo %q", c.code)
		}
	}
	slog.Info("seeded promo codes", slog.Int("count", len(codes)))
	return nil
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `INSERT INTO system_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`
	entries := map[string]any{
		"payment_transfer_enabled": true,
		"payment_transfer_details": map[string]string{
			"bank_name":      "First Commercial Bank",
			"bank_code":      "007",
			"account_number": "000-1234-567890",
			"account_name":   "Lumen Shop Co.",
		},
		"payment_linepay_enabled": false,
		"payment_ecpay_enabled":   false,
		"payment_paypal_enabled":  false,
		"default_currency":        "TWD",
		"default_currency_symbol": "NT$",
		"free_shipping_threshold": "1000",
		"default_shipping_fee":    "60",
	}
	for key, value := range entries {
		raw, err := json.Marshal(value)
		if err != nil {
			return errors.Wrapf(err, "encode setting %q", key)
		}
		if _, err := pool.Exec(ctx, q, key, raw); err != nil {
			return errors.Wrapf(err, "insert setting %q", key)
		}
	}
	slog.Info("seeded settings", slog.Int("count", len(entries)))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey string) error {
	hash := sha256.Sum256([]byte(apiKey))
	const q = `INSERT INTO api_keys (key_hash, name, scopes, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (key_hash) DO NOTHING`
	if _, err := pool.Exec(ctx, q, hex.EncodeToString(hash[:]), "seed-admin", []string{"admin"}); err != nil {
		return errors.Wrap(err, "insert api key")
	}
	slog.Info("seeded admin api key", slog.String("name", "seed-admin"))
	return nil
}

func ptr(s string) *string { return &s }

func ptrInt(i int) *int { return &i }

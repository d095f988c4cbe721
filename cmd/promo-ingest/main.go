// Command promo-ingest bulk-loads campaign promo codes from gzipped CSV
// exports into the promo_codes table. Lines look like:
//
//	CODE,NAME,TYPE,VALUE[,USAGE_LIMIT[,MIN_ORDER_AMOUNT]]
//
// Duplicate codes across files are collapsed; the first occurrence wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lumenshop/checkout/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	minCodeLen    = 4
	maxCodeLen    = 32
	progressEvery = 100_000
)

type promoRow struct {
	code           string
	name           string
	promoType      string
	value          decimal.Decimal
	usageLimit     *int
	minOrderAmount *decimal.Decimal
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promo export .csv.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no .csv.gz files in %s", dataDir)
	}

	slog.Info("parsing export files", slog.Int("files", len(files)))

	rows, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse export files")
	}
	slog.Info("unique codes parsed", slog.Int("count", len(rows)))
	if len(rows) == 0 {
		slog.Info("nothing to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writePromos(ctx, pool, rows)
}

// parseFiles streams every file concurrently and merges the results. A
// bloom filter front-runs the exact duplicate check so the common case of a
// fresh code never takes the lock twice.
func parseFiles(ctx context.Context, files []string) ([]promoRow, error) {
	var (
		mu     sync.Mutex
		filter = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		seen   = make(map[string]struct{})
		rows   []promoRow
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		idx, path := i, f
		g.Go(func() error {
			var count uint64
			err := streamGzFile(ctx, path, func(line string) error {
				row, ok, err := parseLine(line)
				if err != nil {
					return errors.Wrapf(err, "file %d", idx+1)
				}
				if !ok {
					return nil
				}
				count++
				if count%progressEvery == 0 {
					slog.Info("parse progress", slog.Int("file", idx+1), slog.Uint64("lines", count))
				}

				mu.Lock()
				defer mu.Unlock()
				if filter.TestString(row.code) {
					if _, dup := seen[row.code]; dup {
						return nil
					}
				}
				filter.AddString(row.code)
				seen[row.code] = struct{}{}
				rows = append(rows, row)
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "stream %s", path)
			}
			slog.Info("file complete", slog.Int("file", idx+1), slog.Uint64("lines", count))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func parseLine(line string) (promoRow, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return promoRow{}, false, nil
	}
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return promoRow{}, false, errors.Errorf("malformed line %q", line)
	}

	code := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return promoRow{}, false, nil
	}
	promoType := strings.TrimSpace(parts[2])
	switch promoType {
	case "percentage", "amount", "free_shipping":
	default:
		return promoRow{}, false, errors.Errorf("unknown promo type %q for code %s", promoType, code)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
	if err != nil {
		return promoRow{}, false, errors.Wrapf(err, "parse value for code %s", code)
	}

	row := promoRow{
		code:      code,
		name:      strings.TrimSpace(parts[1]),
		promoType: promoType,
		value:     value,
	}
	if len(parts) > 4 && strings.TrimSpace(parts[4]) != "" {
		limit, err := strconv.Atoi(strings.TrimSpace(parts[4]))
		if err != nil {
			return promoRow{}, false, errors.Wrapf(err, "parse usage limit for code %s", code)
		}
		row.usageLimit = &limit
	}
	if len(parts) > 5 && strings.TrimSpace(parts[5]) != "" {
		minOrder, err := decimal.NewFromString(strings.TrimSpace(parts[5]))
		if err != nil {
			return promoRow{}, false, errors.Wrapf(err, "parse min order amount for code %s", code)
		}
		row.minOrderAmount = &minOrder
	}
	return row, true, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writePromos upserts the parsed codes. Existing codes keep their used_count.
func writePromos(ctx context.Context, pool *pgxpool.Pool, rows []promoRow) error {
	slog.Info("writing promo codes to database", slog.Int("count", len(rows)))

	const q = `INSERT INTO promo_codes (code, name, promo_type, promo_value, usage_limit, min_order_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			promo_type = EXCLUDED.promo_type,
			promo_value = EXCLUDED.promo_value,
			usage_limit = EXCLUDED.usage_limit,
			min_order_amount = EXCLUDED.min_order_amount,
			is_active = TRUE,
			updated_at = now()`

	for i, row := range rows {
		if _, err := pool.Exec(ctx, q,
			row.code, row.name, row.promoType, row.value, row.usageLimit, row.minOrderAmount,
		); err != nil {
			return errors.Wrapf(err, "upsert promo %s", row.code)
		}
		if (i+1)%100 == 0 || i+1 == len(rows) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(rows)))
		}
	}
	return nil
}

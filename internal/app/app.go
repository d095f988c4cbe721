// Package app wires the checkout service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/lumenshop/checkout/db"
	"github.com/lumenshop/checkout/internal/api"
	"github.com/lumenshop/checkout/internal/domain/cart"
	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/domain/promo"
	"github.com/lumenshop/checkout/internal/domain/shipping"
	"github.com/lumenshop/checkout/internal/payment"
	"github.com/lumenshop/checkout/internal/repository"
	"github.com/lumenshop/checkout/internal/session"
	"github.com/lumenshop/checkout/internal/settings"
	"github.com/lumenshop/checkout/pkg/health"
	"github.com/lumenshop/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool, db.Migrations); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(2*time.Second))

	// Cart store: Redis when configured, process memory otherwise.
	var cartStore cart.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		cartStore = session.NewRedis(rdb, cfg.CartTTL)
	} else {
		mem := session.NewMemory(cfg.CartTTL)
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					mem.Sweep()
				}
			}
		}()
		cartStore = mem
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProduct(pool)
	promoRepo := repository.NewPromo(pool)
	shippingRepo := repository.NewShipping(pool)
	orderRepo := repository.NewOrder(pool)
	settingsRepo := repository.NewSettings(pool)
	apikeyRepo := repository.NewAPIKey(pool)

	// The bloom filter front-runs promo lookups for codes that cannot exist.
	codeFilter, err := promo.LoadCodeFilter(ctx, promoRepo)
	if err != nil {
		return errors.Wrap(err, "load promo code filter")
	}
	// Periodic rebuild picks up codes ingested by promo-ingest after boot.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := codeFilter.Reload(ctx, promoRepo); err != nil {
					lg.Warn("Promo filter reload failed", zap.Error(err))
				}
			}
		}
	}()

	// Domain services.
	promoEval := promo.NewEvaluator(promoRepo, codeFilter)
	shippingRes := shipping.NewResolver(shippingRepo)
	cartSvc := cart.NewService(cartStore, productRepo, promoEval)
	orderSvc := order.NewService(orderRepo, promoEval, shippingRes)
	settingsSvc := settings.NewService(settingsRepo, cfg.paymentDefaults())

	orchestrator := payment.NewOrchestrator(settingsSvc, orderSvc,
		payment.NewTransfer(),
		payment.NewLinePay(orderSvc),
		payment.NewECPay(),
		payment.NewPayPal(orderSvc),
	)

	// HTTP surface.
	h := api.NewHandler(cartSvc, orderSvc, promoEval, shippingRes, orchestrator, settingsSvc, apikeyRepo)

	metricsMW, err := httpmiddleware.Metrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "register http metrics")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(h.Routes(), "checkout-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
			metricsMW,
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// paymentDefaults converts the static payment configuration into the typed
// settings defaults that database rows overlay.
func (c *Config) paymentDefaults() settings.Payments {
	return settings.Payments{
		Currency:        c.Currency.Code,
		CurrencySymbol:  c.Currency.Symbol,
		TransferEnabled: c.Payments.TransferEnabled,
		Transfer: settings.TransferInfo{
			BankName:      c.Payments.BankName,
			BankCode:      c.Payments.BankCode,
			AccountNumber: c.Payments.BankAccount,
			AccountName:   c.Payments.BankAccountName,
		},
		LinePay: settings.LinePayConfig{
			Enabled:       c.Payments.LinePayEnabled,
			ChannelID:     c.Payments.LinePayChannelID,
			ChannelSecret: c.Payments.LinePayChannelSecret,
			APIBase:       c.Payments.LinePayAPIBase,
		},
		ECPay: settings.ECPayConfig{
			Enabled:    c.Payments.ECPayEnabled,
			MerchantID: c.Payments.ECPayMerchantID,
			HashKey:    c.Payments.ECPayHashKey,
			HashIV:     c.Payments.ECPayHashIV,
			APIBase:    c.Payments.ECPayAPIBase,
		},
		PayPal: settings.PayPalConfig{
			Enabled:     c.Payments.PayPalEnabled,
			ClientID:    c.Payments.PayPalClientID,
			Secret:      c.Payments.PayPalSecret,
			Environment: c.Payments.PayPalEnvironment,
		},
		ReturnBaseURL: c.PublicURL,
	}
}

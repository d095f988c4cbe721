package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string        `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string        `default:"" usage:"Redis address for shared cart sessions; empty keeps carts in process memory" flag:"redis-addr"`
	PublicURL   string        `default:"http://localhost:8080" usage:"Public base URL payment providers redirect back to" flag:"public-url"`
	CartTTL     time.Duration `default:"168h" usage:"How long idle carts are kept" flag:"cart-ttl"`

	Currency  CurrencyConfig
	Payments  PaymentsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// CurrencyConfig sets the default currency when the settings table has no
// override.
type CurrencyConfig struct {
	Code   string `default:"TWD" usage:"ISO currency code"`
	Symbol string `default:"NT$" usage:"Currency symbol shown to customers"`
}

// PaymentsConfig carries static provider credentials. Values stored in
// system_settings take precedence at runtime.
type PaymentsConfig struct {
	TransferEnabled bool   `default:"true" usage:"Enable manual bank transfer" flag:"transfer-enabled"`
	BankName        string `default:"" usage:"Bank name shown for transfers"`
	BankCode        string `default:"" usage:"Bank code shown for transfers"`
	BankAccount     string `default:"" usage:"Account number shown for transfers"`
	BankAccountName string `default:"" usage:"Account holder shown for transfers"`

	LinePayEnabled       bool   `default:"false" usage:"Enable LINE Pay" flag:"linepay-enabled"`
	LinePayChannelID     string `default:"" usage:"LINE Pay channel ID" flag:"linepay-channel-id"`
	LinePayChannelSecret string `default:"" usage:"LINE Pay channel secret" flag:"linepay-channel-secret"`
	LinePayAPIBase       string `default:"" usage:"LINE Pay API base URL override" flag:"linepay-api-base"`

	ECPayEnabled    bool   `default:"false" usage:"Enable ECPay" flag:"ecpay-enabled"`
	ECPayMerchantID string `default:"" usage:"ECPay merchant ID" flag:"ecpay-merchant-id"`
	ECPayHashKey    string `default:"" usage:"ECPay hash key" flag:"ecpay-hash-key"`
	ECPayHashIV     string `default:"" usage:"ECPay hash IV" flag:"ecpay-hash-iv"`
	ECPayAPIBase    string `default:"" usage:"ECPay API base URL override" flag:"ecpay-api-base"`

	PayPalEnabled     bool   `default:"false" usage:"Enable PayPal" flag:"paypal-enabled"`
	PayPalClientID    string `default:"" usage:"PayPal client ID" flag:"paypal-client-id"`
	PayPalSecret      string `default:"" usage:"PayPal client secret" flag:"paypal-secret"`
	PayPalEnvironment string `default:"sandbox" usage:"PayPal environment: sandbox or live" flag:"paypal-environment"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisAddr == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisAddr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

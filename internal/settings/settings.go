// Package settings exposes typed runtime settings stored as JSON values in
// the system_settings table, with static configuration as the fallback.
package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a settings key has no stored value.
var ErrNotFound = errors.New("setting not found")

// Settings keys consumed by the checkout core.
const (
	KeyTransferEnabled = "payment_transfer_enabled"
	KeyLinePayEnabled  = "payment_linepay_enabled"
	KeyECPayEnabled    = "payment_ecpay_enabled"
	KeyPayPalEnabled   = "payment_paypal_enabled"

	KeyTransferDetails = "payment_transfer_details"
	KeyLinePayDetails  = "payment_linepay_details"
	KeyECPayDetails    = "payment_ecpay_details"
	KeyPayPalDetails   = "payment_paypal_details"

	KeyDefaultCurrency       = "default_currency"
	KeyDefaultCurrencySymbol = "default_currency_symbol"
	KeyFreeShippingThreshold = "free_shipping_threshold"
	KeyDefaultShippingFee    = "default_shipping_fee"
)

// TransferInfo is the bank account shown to customers paying by transfer.
type TransferInfo struct {
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// LinePayConfig holds LINE Pay v3 credentials.
type LinePayConfig struct {
	Enabled       bool   `json:"-"`
	ChannelID     string `json:"channel_id"`
	ChannelSecret string `json:"channel_secret"`
	APIBase       string `json:"api_url"`
}

// ECPayConfig holds ECPay merchant credentials.
type ECPayConfig struct {
	Enabled    bool   `json:"-"`
	MerchantID string `json:"merchant_id"`
	HashKey    string `json:"hash_key"`
	HashIV     string `json:"hash_iv"`
	APIBase    string `json:"api_url"`
}

// PayPalConfig holds PayPal REST credentials. Environment is "sandbox" or
// "live".
type PayPalConfig struct {
	Enabled     bool   `json:"-"`
	ClientID    string `json:"client_id"`
	Secret      string `json:"client_secret"`
	Environment string `json:"environment"`
}

// Live reports whether the production PayPal API should be used.
func (c PayPalConfig) Live() bool { return c.Environment == "live" }

// Payments is the assembled payment configuration.
type Payments struct {
	Currency       string
	CurrencySymbol string

	TransferEnabled bool
	Transfer        TransferInfo
	LinePay         LinePayConfig
	ECPay           ECPayConfig
	PayPal          PayPalConfig

	// ReturnBaseURL is the public base URL callbacks and returns point at.
	// It comes from static configuration, never from the database.
	ReturnBaseURL string
}

// Repository persists raw settings values.
type Repository interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// Service assembles typed settings from the stored rows, caching reads for a
// short interval so the hot checkout path does not hit the table per request.
type Service struct {
	repo     Repository
	defaults Payments
	ttl      time.Duration

	mu       sync.RWMutex
	cached   *Payments
	loadedAt time.Time
}

func NewService(repo Repository, defaults Payments) *Service {
	return &Service{
		repo:     repo,
		defaults: defaults,
		ttl:      time.Minute,
	}
}

// Payments returns the current payment configuration, overlaying the stored
// rows on the static defaults.
func (s *Service) Payments(ctx context.Context) (Payments, error) {
	s.mu.RLock()
	if s.cached != nil && time.Since(s.loadedAt) < s.ttl {
		p := *s.cached
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		return Payments{}, errors.Wrap(err, "load settings")
	}

	p := s.defaults
	p.TransferEnabled = boolSetting(rows, KeyTransferEnabled, p.TransferEnabled)
	p.LinePay.Enabled = boolSetting(rows, KeyLinePayEnabled, p.LinePay.Enabled)
	p.ECPay.Enabled = boolSetting(rows, KeyECPayEnabled, p.ECPay.Enabled)
	p.PayPal.Enabled = boolSetting(rows, KeyPayPalEnabled, p.PayPal.Enabled)

	overlay(rows, KeyTransferDetails, &p.Transfer)
	overlay(rows, KeyLinePayDetails, &p.LinePay)
	overlay(rows, KeyECPayDetails, &p.ECPay)
	overlay(rows, KeyPayPalDetails, &p.PayPal)

	if v := stringSetting(rows, KeyDefaultCurrency); v != "" {
		p.Currency = v
	}
	if v := stringSetting(rows, KeyDefaultCurrencySymbol); v != "" {
		p.CurrencySymbol = v
	}

	s.mu.Lock()
	s.cached = &p
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return p, nil
}

// Set stores one settings value and drops the cache.
func (s *Service) Set(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return errors.Errorf("setting %q: invalid JSON", key)
	}
	if err := s.repo.Set(ctx, key, value); err != nil {
		return errors.Wrapf(err, "store setting %q", key)
	}
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return nil
}

// overlay decodes a stored details blob over the defaults in dst, keeping
// the defaults when the key is absent or malformed.
func overlay(rows map[string]json.RawMessage, key string, dst any) {
	raw, ok := rows[key]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

// boolSetting accepts JSON true/false as well as "true"/"1" strings, which
// is how admin tooling historically stored the flags.
func boolSetting(rows map[string]json.RawMessage, key string, def bool) bool {
	raw, ok := rows[key]
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
		return s == "1"
	}
	return def
}

func stringSetting(rows map[string]json.RawMessage, key string) string {
	raw, ok := rows[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

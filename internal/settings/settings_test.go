package settings

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows     map[string]json.RawMessage
	getAlls  int
	setCalls int
}

func (f *fakeRepo) Get(_ context.Context, key string) (json.RawMessage, error) {
	if v, ok := f.rows[key]; ok {
		return v, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetAll(_ context.Context) (map[string]json.RawMessage, error) {
	f.getAlls++
	return f.rows, nil
}

func (f *fakeRepo) Set(_ context.Context, key string, value json.RawMessage) error {
	f.setCalls++
	f.rows[key] = value
	return nil
}

func TestService_PaymentsOverlay(t *testing.T) {
	repo := &fakeRepo{rows: map[string]json.RawMessage{
		KeyLinePayEnabled:  json.RawMessage(`true`),
		KeyLinePayDetails:  json.RawMessage(`{"channel_id": "123", "channel_secret": "sec"}`),
		KeyECPayDetails:    json.RawMessage(`{"merchant_id": "2000132", "hash_key": "k", "hash_iv": "iv"}`),
		KeyDefaultCurrency: json.RawMessage(`"JPY"`),
	}}
	s := NewService(repo, Payments{
		Currency:      "TWD",
		ReturnBaseURL: "https://shop.example.com",
		ECPay:         ECPayConfig{APIBase: "https://payment.ecpay.com.tw"},
	})

	p, err := s.Payments(context.Background())
	require.NoError(t, err)

	assert.True(t, p.LinePay.Enabled)
	assert.Equal(t, "123", p.LinePay.ChannelID)
	assert.False(t, p.ECPay.Enabled)
	assert.Equal(t, "2000132", p.ECPay.MerchantID)
	// Fields absent from the stored blob keep the static default.
	assert.Equal(t, "https://payment.ecpay.com.tw", p.ECPay.APIBase)
	// Stored currency wins over the default.
	assert.Equal(t, "JPY", p.Currency)
	// ReturnBaseURL never comes from the database.
	assert.Equal(t, "https://shop.example.com", p.ReturnBaseURL)
}

func TestService_PaymentsCached(t *testing.T) {
	repo := &fakeRepo{rows: map[string]json.RawMessage{}}
	s := NewService(repo, Payments{})

	_, err := s.Payments(context.Background())
	require.NoError(t, err)
	_, err = s.Payments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getAlls)

	// Writing invalidates the cache.
	require.NoError(t, s.Set(context.Background(), KeyTransferEnabled, json.RawMessage(`true`)))
	p, err := s.Payments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.getAlls)
	assert.True(t, p.TransferEnabled)
}

func TestService_SetRejectsInvalidJSON(t *testing.T) {
	repo := &fakeRepo{rows: map[string]json.RawMessage{}}
	s := NewService(repo, Payments{})

	err := s.Set(context.Background(), KeyTransferEnabled, json.RawMessage(`{not json`))
	assert.Error(t, err)
	assert.Equal(t, 0, repo.setCalls)
}

func TestBoolSetting(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		def  bool
		want bool
	}{
		{"json true", `true`, false, true},
		{"json false", `false`, true, false},
		{"string true", `"true"`, false, true},
		{"string one", `"1"`, false, true},
		{"string zero", `"0"`, true, false},
		{"string junk", `"maybe"`, true, false},
		{"number falls back to default", `1`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := map[string]json.RawMessage{"k": json.RawMessage(tt.raw)}
			assert.Equal(t, tt.want, boolSetting(rows, "k", tt.def))
		})
	}

	assert.True(t, boolSetting(map[string]json.RawMessage{}, "missing", true))
	assert.False(t, boolSetting(map[string]json.RawMessage{}, "missing", false))
}

func TestPayPalConfig_Live(t *testing.T) {
	assert.True(t, PayPalConfig{Environment: "live"}.Live())
	assert.False(t, PayPalConfig{Environment: "sandbox"}.Live())
	assert.False(t, PayPalConfig{}.Live())
}

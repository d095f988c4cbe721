package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limited(t *testing.T, cfg RateLimitConfig) http.Handler {
	t.Helper()
	return RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 2, Window: time.Minute})

	for i := range 2 {
		w := hit(h, "10.0.0.1:9999", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)

	// Port changes do not make a new key.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := limited(t, RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-API-Key")
		},
	})

	keyA := http.Header{"X-Api-Key": {"key-a"}}
	keyB := http.Header{"X-Api-Key": {"key-b"}}

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", keyA).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", keyA).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", keyB).Code)
}

func TestRateLimit_ForwardedFor(t *testing.T) {
	h := limited(t, RateLimitConfig{Max: 1, Window: time.Minute})

	fwd := http.Header{"X-Forwarded-For": {"203.0.113.50, 70.41.3.18"}}

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", fwd).Code)

	// Same forwarded client from another proxy address stays limited.
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:5555", fwd).Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		header     http.Header
		want       string
	}{
		{"remote addr", "10.0.0.1:443", nil, "10.0.0.1"},
		{"real ip", "10.0.0.1:443", http.Header{"X-Real-Ip": {"198.51.100.7"}}, "198.51.100.7"},
		{"forwarded single", "10.0.0.1:443", http.Header{"X-Forwarded-For": {"203.0.113.50"}}, "203.0.113.50"},
		{"forwarded list", "10.0.0.1:443", http.Header{"X-Forwarded-For": {"203.0.113.50, 70.41.3.18"}}, "203.0.113.50"},
		{"unparsable remote", "not-an-addr", nil, "not-an-addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, vs := range tt.header {
				req.Header[k] = vs
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

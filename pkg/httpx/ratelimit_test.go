package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIPEnforcesBurst(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	handler := Chain(okHandler(), RateLimitByIP(cfg))

	for i := range 2 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	handler := Chain(okHandler(), RateLimitByIP(cfg))

	first := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	first.RemoteAddr = "198.51.100.1:1111"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	// A different IP has its own bucket.
	second := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	second.RemoteAddr = "198.51.100.2:2222"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIPKeyExtractorHonorsProxyHeaders(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	require.Equal(t, "10.0.0.1", IPKeyExtractor(req))

	req.Header.Set("X-Real-IP", "192.0.2.10")
	require.Equal(t, "192.0.2.10", IPKeyExtractor(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.20, 10.0.0.1")
	require.Equal(t, "192.0.2.20", IPKeyExtractor(req))
}

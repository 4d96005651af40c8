package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/metricsx"
)

func setupLimiter(t *testing.T, class string, cfg httpx.RateLimitConfig) (*httpx.RateLimiter, *miniredis.Miniredis, *metricsx.Sink) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := metricsx.NewSink(0)
	return httpx.NewRateLimiter(rdb, class, cfg, sink), mr, sink
}

func TestRateLimiterAdmit(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 3, Window: time.Minute}
	l, mr, _ := setupLimiter(t, "general", cfg)
	ctx := context.Background()

	t.Run("admits up to the ceiling", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			d := l.Admit(ctx, "1.2.3.4")
			require.True(t, d.Allowed, "request %d", i+1)
		}

		d := l.Admit(ctx, "1.2.3.4")
		require.False(t, d.Allowed)
		require.Zero(t, d.Remaining)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		mr.FastForward(time.Minute + time.Second)

		d := l.Admit(ctx, "1.2.3.4")
		require.True(t, d.Allowed)
		require.Equal(t, 2, d.Remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			l.Admit(ctx, "5.6.7.8")
		}
		d := l.Admit(ctx, "9.9.9.9")
		require.True(t, d.Allowed)
	})
}

func TestRateLimiterClassNamespaces(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sink := metricsx.NewSink(0)

	authL := httpx.NewRateLimiter(rdb, "auth", httpx.RateLimitConfig{Requests: 1, Window: time.Minute}, sink)
	genL := httpx.NewRateLimiter(rdb, "general", httpx.RateLimitConfig{Requests: 10, Window: time.Minute}, sink)
	ctx := context.Background()

	// Exhaust the auth class for this key.
	require.True(t, authL.Admit(ctx, "1.2.3.4").Allowed)
	require.False(t, authL.Admit(ctx, "1.2.3.4").Allowed)

	// The general class for the same key is untouched.
	require.True(t, genL.Admit(ctx, "1.2.3.4").Allowed)
}

func TestRateLimiterWindowBoundarySetOnce(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 100, Window: time.Minute}
	l, mr, _ := setupLimiter(t, "general", cfg)
	ctx := context.Background()

	first := l.Admit(ctx, "key")
	// Later requests inherit the TTL established by the first, so the reset
	// time never slides forward with traffic.
	mr.FastForward(30 * time.Second)
	later := l.Admit(ctx, "key")

	require.True(t, later.ResetAt.Before(first.ResetAt.Add(time.Second)))
}

func TestRateLimiterDegradesWhenStoreDown(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 2, Window: time.Minute}
	l, mr, sink := setupLimiter(t, "general", cfg)
	mr.Close()

	ctx := context.Background()

	// The per-process fallback still enforces the rate.
	first := l.Admit(ctx, "1.2.3.4")
	require.True(t, first.Allowed)
	l.Admit(ctx, "1.2.3.4")
	third := l.Admit(ctx, "1.2.3.4")
	require.False(t, third.Allowed)

	// And the outage is never silent.
	snap := sink.Snapshot()
	require.GreaterOrEqual(t, snap[`registry_credential_store_errors_total{kind="redis",operation="ratelimit_incr"}`], 1.0)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{Requests: 2, Window: time.Minute}
	l, _, sink := setupLimiter(t, "auth", cfg)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := httpx.RateLimit(l, httpx.IPKeyExtractor)(ok)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	send()
	rec = send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	require.Contains(t, rec.Body.String(), "reset_at")

	snap := sink.Snapshot()
	require.Equal(t, 1.0, snap[`registry_rate_limit_violations_total{class="auth",endpoint="/v1/auth/login"}`])
}

func TestKeyExtractors(t *testing.T) {
	t.Run("ip from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("composite skips empty parts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		ex := httpx.CompositeKeyExtractor(":", httpx.AddressKeyExtractor, httpx.IPKeyExtractor)
		require.Equal(t, "192.168.1.1", ex(req))
	})
}

package httpx

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

// RateLimitConfig defines one limiter class's parameters.
type RateLimitConfig struct {
	// Requests is the ceiling within one window.
	Requests int
	// Window is the sliding window length. Each key's window starts at its
	// first request, not at wall-clock boundaries.
	Window time.Duration
}

// Limiter class profiles. Each class keeps an independent Redis key
// namespace, so exhausting one never affects another.
// Override via RATELIMIT_{CLASS}_REQUESTS / RATELIMIT_{CLASS}_WINDOW_SEC.
var (
	// GeneralLimit covers the plain API surface.
	GeneralLimit = RateLimitConfig{Requests: 100, Window: time.Minute}

	// AuthLimit is strict: login/refresh are brute-force targets.
	AuthLimit = RateLimitConfig{Requests: 5, Window: time.Minute}

	// SearchLimit covers query-heavy read endpoints.
	SearchLimit = RateLimitConfig{Requests: 30, Window: time.Minute}

	// UploadLimit covers mutation endpoints that accept payloads.
	UploadLimit = RateLimitConfig{Requests: 10, Window: time.Minute}

	// WebhookLimit covers webhook registration endpoints.
	WebhookLimit = RateLimitConfig{Requests: 10, Window: time.Minute}

	// AdminLimit covers X-API-Key gated operator endpoints.
	AdminLimit = RateLimitConfig{Requests: 30, Window: time.Minute}
)

func init() {
	GeneralLimit = ParseRateLimitFromEnv("GENERAL", GeneralLimit)
	AuthLimit = ParseRateLimitFromEnv("AUTH", AuthLimit)
	SearchLimit = ParseRateLimitFromEnv("SEARCH", SearchLimit)
	UploadLimit = ParseRateLimitFromEnv("UPLOAD", UploadLimit)
	WebhookLimit = ParseRateLimitFromEnv("WEBHOOK", WebhookLimit)
	AdminLimit = ParseRateLimitFromEnv("ADMIN", AdminLimit)
}

// ParseRateLimitFromEnv reads a limiter config from environment variables
// following the pattern RATELIMIT_{prefix}_{field}. Useful for tests and
// per-deployment tuning.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Requests = n
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Window = time.Duration(n) * time.Second
		}
	}

	return cfg
}

// KeyExtractor derives the rate-limit key for a request (IP, authenticated
// address, a composite of both, ...).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP, honouring X-Forwarded-For and
// X-Real-IP for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// AddressKeyExtractor extracts the authenticated wallet address from the
// request context; "" when anonymous.
func AddressKeyExtractor(r *http.Request) string {
	return AddressFromContext(r.Context())
}

// CompositeKeyExtractor combines extractors, skipping empty parts.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, ex := range extractors {
			if key := ex(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter admits requests against a Redis counter shared by every
// backend instance.
//
// Store-outage policy: when Redis is unreachable the limiter degrades to a
// per-process token bucket with the same rate, logs the error, and counts
// it in the metrics sink. Traffic is never silently unlimited and never
// hard-rejected because of an infrastructure fault.
type RateLimiter struct {
	rdb   redis.Cmdable
	class string
	cfg   RateLimitConfig
	sink  *metricsx.Sink

	local localLimiters
}

// NewRateLimiter builds a limiter for one class. The class names the Redis
// key namespace and the metrics dimension.
func NewRateLimiter(rdb redis.Cmdable, class string, cfg RateLimitConfig, sink *metricsx.Sink) *RateLimiter {
	return &RateLimiter{
		rdb:   rdb,
		class: class,
		cfg:   cfg,
		sink:  sink,
		local: localLimiters{
			limit:       rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
			burst:       cfg.Requests,
			lastCleanup: time.Now(),
		},
	}
}

// Class returns the limiter class name.
func (l *RateLimiter) Class() string { return l.class }

// Config returns the limiter's ceiling and window.
func (l *RateLimiter) Config() RateLimitConfig { return l.cfg }

// Admit atomically increments the counter for key and decides admission.
// The window boundary is established exactly once per key: the expiry is
// set only by the caller that observed the post-increment value 1, so
// concurrent first requests cannot each restart the window.
func (l *RateLimiter) Admit(ctx context.Context, key string) Decision {
	now := time.Now()
	redisKey := "ratelimit:" + l.class + ":" + key

	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		l.sink.StoreError("redis", "ratelimit_incr")
		slogx.FromContext(ctx).Warn("rate limit store unreachable, using per-instance fallback",
			"class", l.class, "error", err)
		return l.admitLocal(key, now)
	}

	count := incr.Val()
	resetAt := now.Add(l.cfg.Window)
	if count == 1 {
		// First request in a fresh window owns the boundary.
		if err := l.rdb.PExpire(ctx, redisKey, l.cfg.Window).Err(); err != nil {
			l.sink.StoreError("redis", "ratelimit_expire")
		}
	} else if ttl := pttl.Val(); ttl > 0 {
		resetAt = now.Add(ttl)
	}

	remaining := l.cfg.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(l.cfg.Requests),
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (l *RateLimiter) admitLocal(key string, now time.Time) Decision {
	return Decision{
		Allowed:   l.local.get(key).Allow(),
		Remaining: 0,
		ResetAt:   now.Add(l.cfg.Window),
	}
}

// localLimiters is the degraded, per-process mode: one token bucket per key.
type localLimiters struct {
	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (ll *localLimiters) get(key string) *rate.Limiter {
	if lim, ok := ll.limiters.Load(key); ok {
		return lim.(*rate.Limiter)
	}

	lim := rate.NewLimiter(ll.limit, ll.burst)
	actual, _ := ll.limiters.LoadOrStore(key, lim)
	ll.maybeCleanup(key)
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle limiters so ephemeral keys don't accumulate while
// Redis is down for a long stretch. The key just handed to a caller is never
// swept: its bucket is still full at this point, but the caller is about to
// draw from it.
func (ll *localLimiters) maybeCleanup(justStored string) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if time.Since(ll.lastCleanup) < 5*time.Minute {
		return
	}
	ll.lastCleanup = time.Now()

	ll.limiters.Range(func(key, value any) bool {
		if key.(string) == justStored {
			return true
		}
		if value.(*rate.Limiter).Tokens() >= float64(ll.burst) {
			ll.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit is the admission middleware for one limiter class. Rejections
// carry standard rate-limit headers, a structured 429 body with the reset
// time, and increment one violation counter.
func RateLimit(l *RateLimiter, keyFn KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyFn(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request",
					"class", l.Class())
				next.ServeHTTP(w, r)
				return
			}

			d := l.Admit(ctx, key)

			cfg := l.Config()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := int(time.Until(d.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				l.sink.RateLimitViolation(r.URL.Path, l.Class())
				log.Warn("rate limit exceeded",
					"class", l.Class(),
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, ErrorBody{
					Error:       "rate_limit_exceeded",
					Description: "Too many requests. Please try again later.",
					ResetAt:     d.ResetAt.Unix(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

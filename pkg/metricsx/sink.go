// Package metricsx provides the security-metrics sink for the request
// admission pipeline. Every rejection in the pipeline increments exactly one
// counter here; recording is side-effect only and can never fail the request
// being measured.
package metricsx

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRingSize caps the in-memory sample ring. Exceeding it evicts the
// oldest sample.
const DefaultRingSize = 256

// Sample is one recorded security event, kept in a bounded ring for
// debugging recent activity without a metrics backend.
type Sample struct {
	At     time.Time
	Kind   string
	Labels []string
}

// Sink maintains security event counters on a dedicated Prometheus registry.
// Construct one per process and inject it; there is no package-level state.
type Sink struct {
	registry *prometheus.Registry

	authFailures    *prometheus.CounterVec
	adminFailures   *prometheus.CounterVec
	jwtErrors       *prometheus.CounterVec
	rateLimitHits   *prometheus.CounterVec
	csrfFailures    *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	validationFails *prometheus.CounterVec
	rotationGrace   *prometheus.CounterVec
	legacyAdminUses *prometheus.CounterVec

	mu      sync.Mutex
	ring    []Sample
	ringPos int
	ringLen int
}

// NewSink creates a sink with its own registry. ringSize <= 0 selects
// DefaultRingSize.
func NewSink(ringSize int) *Sink {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}

	s := &Sink{
		registry: prometheus.NewRegistry(),
		ring:     make([]Sample, ringSize),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_auth_failures_total",
			Help: "Bearer authentication failures by reason and endpoint",
		}, []string{"reason", "endpoint"}),
		adminFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_admin_auth_failures_total",
			Help: "Admin API-key authentication failures by reason",
		}, []string{"reason"}),
		jwtErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_jwt_validation_errors_total",
			Help: "JWT validation errors by reason",
		}, []string{"reason"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_rate_limit_violations_total",
			Help: "Rate limit rejections by endpoint and limiter class",
		}, []string{"endpoint", "class"}),
		csrfFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_csrf_failures_total",
			Help: "CSRF validation failures by reason",
		}, []string{"reason"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_credential_store_errors_total",
			Help: "Credential store and cache errors by kind and operation",
		}, []string{"kind", "operation"}),
		validationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_input_validation_errors_total",
			Help: "Input validation errors by field and kind",
		}, []string{"field", "kind"}),
		rotationGrace: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_jwt_rotation_grace_total",
			Help: "Tokens accepted via the previous signing secret",
		}, []string{}),
		legacyAdminUses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_legacy_admin_auth_total",
			Help: "Successful authentications via the deprecated shared admin secret",
		}, []string{}),
	}

	s.registry.MustRegister(
		s.authFailures,
		s.adminFailures,
		s.jwtErrors,
		s.rateLimitHits,
		s.csrfFailures,
		s.storeErrors,
		s.validationFails,
		s.rotationGrace,
		s.legacyAdminUses,
	)

	return s
}

func (s *Sink) AuthFailure(reason, endpoint string) {
	s.authFailures.WithLabelValues(reason, endpoint).Inc()
	s.sample("auth_failure", reason, endpoint)
}

func (s *Sink) AdminAuthFailure(reason string) {
	s.adminFailures.WithLabelValues(reason).Inc()
	s.sample("admin_auth_failure", reason)
}

func (s *Sink) JWTError(reason string) {
	s.jwtErrors.WithLabelValues(reason).Inc()
	s.sample("jwt_error", reason)
}

func (s *Sink) RateLimitViolation(endpoint, class string) {
	s.rateLimitHits.WithLabelValues(endpoint, class).Inc()
	s.sample("rate_limit", endpoint, class)
}

func (s *Sink) CSRFFailure(reason string) {
	s.csrfFailures.WithLabelValues(reason).Inc()
	s.sample("csrf_failure", reason)
}

func (s *Sink) StoreError(kind, operation string) {
	s.storeErrors.WithLabelValues(kind, operation).Inc()
	s.sample("store_error", kind, operation)
}

func (s *Sink) ValidationError(field, kind string) {
	s.validationFails.WithLabelValues(field, kind).Inc()
	s.sample("validation_error", field, kind)
}

func (s *Sink) RotationGrace() {
	s.rotationGrace.WithLabelValues().Inc()
	s.sample("rotation_grace")
}

func (s *Sink) LegacyAdminAuth() {
	s.legacyAdminUses.WithLabelValues().Inc()
	s.sample("legacy_admin_auth")
}

func (s *Sink) sample(kind string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.ringPos] = Sample{At: time.Now(), Kind: kind, Labels: labels}
	s.ringPos = (s.ringPos + 1) % len(s.ring)
	if s.ringLen < len(s.ring) {
		s.ringLen++
	}
}

// RecentEvents returns the ring contents, oldest first.
func (s *Sink) RecentEvents() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, 0, s.ringLen)
	start := s.ringPos - s.ringLen
	if start < 0 {
		start += len(s.ring)
	}
	for i := 0; i < s.ringLen; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

// Handler exposes the sink in Prometheus text exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Snapshot flattens the registry into "name{label="v",...}" -> value.
// Intended for tests and debug endpoints, not for scraping.
func (s *Sink) Snapshot() map[string]float64 {
	out := make(map[string]float64)

	families, err := s.registry.Gather()
	if err != nil {
		return out
	}

	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := fam.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				parts := make([]string, 0, len(labels))
				for _, l := range labels {
					parts = append(parts, l.GetName()+"="+strconv.Quote(l.GetValue()))
				}
				key += "{" + strings.Join(parts, ",") + "}"
			}
			if c := m.GetCounter(); c != nil {
				out[key] = c.GetValue()
			}
		}
	}

	return out
}

// Reset clears all counters and the sample ring. For test isolation only.
func (s *Sink) Reset() {
	s.authFailures.Reset()
	s.adminFailures.Reset()
	s.jwtErrors.Reset()
	s.rateLimitHits.Reset()
	s.csrfFailures.Reset()
	s.storeErrors.Reset()
	s.validationFails.Reset()
	s.rotationGrace.Reset()
	s.legacyAdminUses.Reset()

	s.mu.Lock()
	s.ringPos = 0
	s.ringLen = 0
	s.mu.Unlock()
}

package edge

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricID identifies one of the engine counters.
type MetricID uint16

const (
	MetricSessionIssued MetricID = iota
	MetricReissueSuccess
	MetricReissueFailure
	MetricLogoutSuccess
	MetricLogoutFailure
	MetricAuthSuccess
	MetricAuthBlacklisted
	MetricAuthExpired
	MetricAuthInvalid
	MetricRateLimitHit
	MetricRateLimitUnavailable
	metricIDCount
)

var metricDefs = [metricIDCount]struct {
	name string
	help string
}{
	MetricSessionIssued:        {"edge_sessions_issued_total", "Token pairs issued on login or join."},
	MetricReissueSuccess:       {"edge_reissue_success_total", "Successful access token reissues."},
	MetricReissueFailure:       {"edge_reissue_failure_total", "Rejected access token reissues."},
	MetricLogoutSuccess:        {"edge_logout_success_total", "Sessions revoked by logout."},
	MetricLogoutFailure:        {"edge_logout_failure_total", "Rejected logout attempts."},
	MetricAuthSuccess:          {"edge_auth_success_total", "Requests authenticated by bearer token."},
	MetricAuthBlacklisted:      {"edge_auth_blacklisted_total", "Requests rejected for a logged-out access token."},
	MetricAuthExpired:          {"edge_auth_expired_total", "Requests rejected for an expired access token."},
	MetricAuthInvalid:          {"edge_auth_invalid_total", "Requests rejected for an invalid or unsupported access token."},
	MetricRateLimitHit:         {"edge_rate_limit_hit_total", "Requests rejected by the rate limiter."},
	MetricRateLimitUnavailable: {"edge_rate_limit_unavailable_total", "Requests that met an unreachable rate limit store."},
}

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	counters [metricIDCount]prometheus.Counter
	latency  prometheus.Histogram
}

// NewMetrics creates and registers every engine collector plus the Go and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	for id := MetricID(0); id < metricIDCount; id++ {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricDefs[id].name,
			Help: metricDefs[id].help,
		})
		m.counters[id] = c
		m.registry.MustRegister(c)
	}

	m.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_authenticate_duration_seconds",
		Help:    "Latency of bearer token authentication, including the blacklist lookup.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	})
	m.registry.MustRegister(
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Inc increments counter id. It is a no-op on a nil receiver.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].Inc()
}

// Counter exposes counter id for tests and custom exporters.
func (m *Metrics) Counter(id MetricID) prometheus.Counter {
	if m == nil || id >= metricIDCount {
		return nil
	}
	return m.counters[id]
}

// ObserveAuthenticate records one authentication latency sample.
func (m *Metrics) ObserveAuthenticate(d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

// MustRegister adds collectors owned by other components (for example the
// notification dispatcher) to the same registry.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(cs...)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

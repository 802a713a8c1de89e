package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the instrumentation surface the gateway records against.
// Handlers call these; the implementation decides where the numbers go.
type Metrics interface {
	// RecordRequest counts one completed gateway request by endpoint,
	// outcome and status code, and observes its total latency.
	RecordRequest(endpoint, outcome string, statusCode int, latency time.Duration)

	// RecordQuotaDenial counts a request refused by the balance check.
	RecordQuotaDenial(endpoint string)

	// RecordRateLimited counts a request refused by the rate limiter.
	RecordRateLimited(endpoint string)

	// RecordAuditWriteFailure counts an audit entry that could not be
	// persisted. The request itself is unaffected; this counter is how
	// operators notice the audit trail is losing entries.
	RecordAuditWriteFailure()

	// RecordUpstreamLatency observes the downstream round-trip alone,
	// excluding gateway bookkeeping.
	RecordUpstreamLatency(endpoint string, latency time.Duration)

	// RecordCredentialIssued counts issuances and refreshes separately.
	RecordCredentialIssued(refresh bool)

	// HTTPHandler exposes the scrape endpoint.
	HTTPHandler() http.Handler
}

// PrometheusMetrics implements Metrics on the default Prometheus registry.
type PrometheusMetrics struct {
	requestsTotal      *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	quotaDenialsTotal  *prometheus.CounterVec
	rateLimitedTotal   *prometheus.CounterVec
	auditWriteFailures prometheus.Counter
	upstreamLatency    *prometheus.HistogramVec
	credentialsIssued  *prometheus.CounterVec
}

// NewPrometheusMetrics registers the gateway's collectors. Call once per
// process; promauto panics on duplicate registration.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Completed gateway requests by endpoint, outcome and status code.",
			},
			[]string{"endpoint", "outcome", "status_code"},
		),
		requestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "End-to-end request latency through the gateway.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		quotaDenialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_quota_denials_total",
				Help: "Requests refused because the monthly balance could not cover the cost.",
			},
			[]string{"endpoint"},
		),
		rateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Requests refused by the per-caller rate limiter.",
			},
			[]string{"endpoint"},
		),
		auditWriteFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_audit_write_failures_total",
				Help: "Audit entries that could not be persisted.",
			},
		),
		upstreamLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_duration_seconds",
				Help:    "Downstream service round-trip latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		credentialsIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_credentials_issued_total",
				Help: "Credentials minted, split by fresh issuance vs refresh.",
			},
			[]string{"kind"},
		),
	}
}

func (m *PrometheusMetrics) RecordRequest(endpoint, outcome string, statusCode int, latency time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, outcome, strconvStatus(statusCode)).Inc()
	m.requestLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

func (m *PrometheusMetrics) RecordQuotaDenial(endpoint string) {
	m.quotaDenialsTotal.WithLabelValues(endpoint).Inc()
}

func (m *PrometheusMetrics) RecordRateLimited(endpoint string) {
	m.rateLimitedTotal.WithLabelValues(endpoint).Inc()
}

func (m *PrometheusMetrics) RecordAuditWriteFailure() {
	m.auditWriteFailures.Inc()
}

func (m *PrometheusMetrics) RecordUpstreamLatency(endpoint string, latency time.Duration) {
	m.upstreamLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

func (m *PrometheusMetrics) RecordCredentialIssued(refresh bool) {
	kind := "issue"
	if refresh {
		kind = "refresh"
	}
	m.credentialsIssued.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}

func strconvStatus(code int) string {
	// Status codes are three digits; avoid strconv for the hot path.
	if code < 100 || code > 999 {
		return "0"
	}
	return string([]byte{
		byte('0' + code/100),
		byte('0' + (code/10)%10),
		byte('0' + code%10),
	})
}

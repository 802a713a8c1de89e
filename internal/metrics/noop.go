package metrics

import (
	"net/http"
	"time"
)

// NoopMetrics satisfies Metrics without recording anything. Used in tests
// and when the scrape endpoint is disabled.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (m *NoopMetrics) RecordRequest(endpoint, outcome string, statusCode int, latency time.Duration) {
}
func (m *NoopMetrics) RecordQuotaDenial(endpoint string)                            {}
func (m *NoopMetrics) RecordRateLimited(endpoint string)                            {}
func (m *NoopMetrics) RecordAuditWriteFailure()                                     {}
func (m *NoopMetrics) RecordUpstreamLatency(endpoint string, latency time.Duration) {}
func (m *NoopMetrics) RecordCredentialIssued(refresh bool)                          {}
func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

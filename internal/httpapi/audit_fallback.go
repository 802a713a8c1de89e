package httpapi

import (
	"context"
	"net/http"
	"time"

	"meter_gateway/internal/audit"
	"meter_gateway/internal/metrics"
	"meter_gateway/internal/middleware"
	"meter_gateway/internal/models"
)

type auditStateKey struct{}

// auditState tracks whether a handler down the chain already recorded the
// request's audit entry, so each attempt yields exactly one entry.
type auditState struct {
	recorded bool
}

// markAudited flags the request as recorded by the pipeline handler.
func markAudited(ctx context.Context) {
	if state, ok := ctx.Value(auditStateKey{}).(*auditState); ok {
		state.recorded = true
	}
}

// statusRecorder captures the status code written by inner handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// AuditFallback records an audit entry for metered requests the pipeline
// handler never saw, which happens when the identity middleware rejects
// the request. Requests the handler did record are left alone.
func AuditFallback(sink audit.Sink, m metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			state := &auditState{}
			ctx := context.WithValue(r.Context(), auditStateKey{}, state)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(ctx))

			if state.recorded {
				return
			}

			outcome := models.AuditOutcomeError
			switch rec.status {
			case http.StatusUnauthorized:
				outcome = models.AuditOutcomeAuthFailed
			case http.StatusBadGateway:
				// Identity provider unreachable during credential lookup.
				outcome = models.AuditOutcomeError
			}

			entry := &models.AuditLogEntry{
				RequestID:       middleware.GetRequestID(ctx),
				Method:          r.Method,
				Path:            r.URL.Path,
				StatusCode:      rec.status,
				LatencyMs:       time.Since(start).Milliseconds(),
				Outcome:         outcome,
				RedactedHeaders: audit.RedactHeaders(r.Header),
			}
			sink.Record(context.WithoutCancel(ctx), entry)
			m.RecordRequest(r.URL.Path, outcome, rec.status, time.Since(start))
		})
	}
}

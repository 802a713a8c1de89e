package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/audit"
	"meter_gateway/internal/config"
	"meter_gateway/internal/ledger"
	"meter_gateway/internal/metrics"
	"meter_gateway/internal/middleware"
	"meter_gateway/internal/models"
	"meter_gateway/internal/ratelimit"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// maxAuditBodyBytes caps how much of a request body is buffered for the
// audit trail. Larger bodies are forwarded untouched but not recorded.
const maxAuditBodyBytes = 64 * 1024

// EndpointResolver looks up the static cost entry for a request path.
type EndpointResolver interface {
	GetByPath(ctx context.Context, path string) (*models.Endpoint, error)
}

// DownstreamForwarder relays a request to the downstream service.
type DownstreamForwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, path string) (int, error)
}

// GatewayHandler runs the metered request pipeline: identity (set by
// middleware), endpoint cost, rate limit, balance deduction, forwarding,
// and a single audit entry per attempt.
type GatewayHandler struct {
	endpoints EndpointResolver
	ledger    ledger.Service
	limiter   ratelimit.Limiter
	forwarder DownstreamForwarder
	sink      audit.Sink
	metrics   metrics.Metrics
	rateCfg   config.RateLimitConfig
	logger    *utils.Logger
}

// NewGatewayHandler creates the metered pipeline handler.
func NewGatewayHandler(
	endpoints EndpointResolver,
	ledgerSvc ledger.Service,
	limiter ratelimit.Limiter,
	forwarder DownstreamForwarder,
	sink audit.Sink,
	m metrics.Metrics,
	rateCfg config.RateLimitConfig,
) *GatewayHandler {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &GatewayHandler{
		endpoints: endpoints,
		ledger:    ledgerSvc,
		limiter:   limiter,
		forwarder: forwarder,
		sink:      sink,
		metrics:   m,
		rateCfg:   rateCfg,
		logger:    utils.NewLogger("gateway"),
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path

	entry := &models.AuditLogEntry{
		RequestID:       middleware.GetRequestID(r.Context()),
		Method:          r.Method,
		Path:            path,
		Outcome:         models.AuditOutcomeError,
		RedactedHeaders: audit.RedactHeaders(r.Header),
	}
	defer func() {
		entry.LatencyMs = time.Since(start).Milliseconds()
		// The audit row must land even when the client has already gone
		// away; a canceled request context would abort the insert after
		// the deduction committed.
		h.sink.Record(context.WithoutCancel(r.Context()), entry)
		h.metrics.RecordRequest(path, entry.Outcome, entry.StatusCode, time.Since(start))
		markAudited(r.Context())
	}()

	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		entry.Outcome = models.AuditOutcomeAuthFailed
		entry.StatusCode = http.StatusUnauthorized
		respondAppError(w, apperrors.New(apperrors.KindAuthentication, "caller identity missing"))
		return
	}
	entry.CallerID = &caller.ID
	if cred, ok := middleware.GetCredential(r.Context()); ok {
		entry.CredentialID = &cred.ID
	}

	if body := h.bufferBody(r); body != nil {
		entry.RedactedBody = audit.RedactBody(body)
	}

	endpoint, err := h.endpoints.GetByPath(r.Context(), path)
	if err != nil || !endpoint.Active {
		if err != nil && !errors.Is(err, storage.ErrEndpointNotFound) {
			entry.StatusCode = http.StatusServiceUnavailable
			h.fail(w, entry, apperrors.Wrap(apperrors.KindStorage, "failed to resolve endpoint", err))
			return
		}
		h.logger.Error("metered request for unregistered path", "path", path, "caller_id", caller.ID)
		entry.StatusCode = http.StatusInternalServerError
		h.fail(w, entry, apperrors.Newf(apperrors.KindConfiguration, "no cost registered for path %s", path))
		return
	}
	entry.EndpointID = &endpoint.ID

	if ok := h.checkRateLimit(r.Context(), w, caller, entry); !ok {
		h.metrics.RecordRateLimited(path)
		return
	}

	remaining, err := h.ledger.CheckAndDeduct(r.Context(), caller.ID, endpoint.ID)
	if err != nil {
		switch {
		case apperrors.IsQuotaExceeded(err):
			h.metrics.RecordQuotaDenial(path)
			entry.Outcome = models.AuditOutcomeQuotaDenied
			entry.StatusCode = http.StatusPaymentRequired
		case apperrors.IsStorage(err):
			entry.StatusCode = http.StatusServiceUnavailable
		default:
			entry.StatusCode = http.StatusInternalServerError
		}
		h.fail(w, entry, err)
		return
	}
	w.Header().Set("X-Balance-Remaining", strconv.FormatInt(remaining, 10))

	upstreamStart := time.Now()
	status, err := h.forwarder.Forward(w, r, path)
	h.metrics.RecordUpstreamLatency(path, time.Since(upstreamStart))
	entry.StatusCode = status
	if err != nil {
		msg := err.Error()
		entry.Error = &msg
		if status == 0 {
			entry.StatusCode = http.StatusBadGateway
			respondAppError(w, err)
		}
		return
	}
	entry.Outcome = models.AuditOutcomeSuccess
}

// bufferBody reads up to maxAuditBodyBytes of the request body for the
// audit trail and restores the body for forwarding. Oversized or
// unreadable bodies are left alone and not recorded.
func (h *GatewayHandler) bufferBody(r *http.Request) []byte {
	if r.Body == nil || r.ContentLength == 0 || r.ContentLength > maxAuditBodyBytes {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBodyBytes+1))
	if err != nil || len(body) > maxAuditBodyBytes {
		r.Body = io.NopCloser(bytes.NewReader(body))
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// checkRateLimit enforces the caller's per-minute request budget. It writes
// the 429 response itself and reports false when the caller is over limit.
func (h *GatewayHandler) checkRateLimit(ctx context.Context, w http.ResponseWriter, caller *models.Caller, entry *models.AuditLogEntry) bool {
	limit := caller.RateLimitPerMinute
	if limit == 0 {
		limit = h.rateCfg.DefaultPerMinute
	}
	allowed, remaining, resetAt, err := h.limiter.AllowWithDetails(ctx, caller.ID.String(), limit)
	if err != nil {
		// Fail open: a rate limiter outage must not take down metered traffic.
		h.logger.Warn("rate limiter unavailable, allowing request", "caller_id", caller.ID, "error", err)
		return true
	}
	if remaining >= 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
	if allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
	entry.Outcome = models.AuditOutcomeRateLimited
	entry.StatusCode = http.StatusTooManyRequests
	utils.RespondWithJSON(w, http.StatusTooManyRequests, apiError{
		Code:  "rate_limited",
		Error: fmt.Sprintf("rate limit of %d requests per minute exceeded", limit),
	})
	return false
}

// fail records the error on the audit entry and writes the mapped response.
func (h *GatewayHandler) fail(w http.ResponseWriter, entry *models.AuditLogEntry, err error) {
	msg := err.Error()
	entry.Error = &msg
	respondAppError(w, err)
}

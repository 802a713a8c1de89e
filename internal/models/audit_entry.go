package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit outcomes. One entry exists per request attempt regardless of how
// the attempt ended; the outcome says how.
const (
	AuditOutcomeSuccess     = "success"
	AuditOutcomeAuthFailed  = "auth_failed"
	AuditOutcomeQuotaDenied = "quota_denied"
	AuditOutcomeRateLimited = "rate_limited"
	AuditOutcomeError       = "error"
)

// AuditLogEntry is the append-only, redacted record of one request handled
// by the metering gateway. Sensitive header and body fields are replaced
// with a redaction marker before the entry is built; plaintext credentials
// never reach this struct.
type AuditLogEntry struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	RequestID       string     `db:"request_id" json:"request_id"`
	CallerID        *uuid.UUID `db:"caller_id" json:"caller_id,omitempty"`         // NULL when identity never resolved
	CredentialID    *uuid.UUID `db:"credential_id" json:"credential_id,omitempty"` // NULL on API-key routes
	EndpointID      *uuid.UUID `db:"endpoint_id" json:"endpoint_id,omitempty"`
	Method          string     `db:"method" json:"method"`
	Path            string     `db:"path" json:"path"`
	StatusCode      int        `db:"status_code" json:"status_code"`
	LatencyMs       int64      `db:"latency_ms" json:"latency_ms"`
	Outcome         string     `db:"outcome" json:"outcome"`
	Error           *string    `db:"error" json:"error,omitempty"`
	RedactedHeaders JSONB      `db:"redacted_headers" json:"redacted_headers,omitempty"`
	RedactedBody    JSONB      `db:"redacted_body" json:"redacted_body,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

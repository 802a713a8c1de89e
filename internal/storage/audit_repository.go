package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
)

// AuditRepository handles audit log database operations. The log is
// append-only; rows are never updated or deleted by the gateway.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{
		db: db,
	}
}

// Insert writes one audit log entry
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log_entries (
			id, request_id, caller_id, credential_id, endpoint_id,
			method, path, status_code, latency_ms, outcome, error,
			redacted_headers, redacted_body
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	err := r.db.conn.QueryRowContext(
		ctx, query,
		entry.ID, entry.RequestID, entry.CallerID, entry.CredentialID, entry.EndpointID,
		entry.Method, entry.Path, entry.StatusCode, entry.LatencyMs, entry.Outcome, entry.Error,
		entry.RedactedHeaders, entry.RedactedBody,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert audit log entry: %w", err)
	}

	return nil
}

// CountByOutcome returns how many audit entries exist per outcome, mostly
// useful in tests and ad hoc inspection
func (r *AuditRepository) CountByOutcome(ctx context.Context, outcome string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM audit_log_entries WHERE outcome = $1`

	err := r.db.conn.GetContext(ctx, &count, query, outcome)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit log entries: %w", err)
	}

	return count, nil
}

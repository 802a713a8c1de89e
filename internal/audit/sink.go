package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/metrics"
	"meter_gateway/internal/models"
	"meter_gateway/internal/utils"
)

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, entry *models.AuditLogEntry) error
}

// Sink receives one entry per request attempt. Recording must never fail
// the request it describes: implementations swallow their own errors.
type Sink interface {
	Record(ctx context.Context, entry *models.AuditLogEntry)
}

// DBSink writes entries synchronously to the database, then hands a copy
// to the archive exporter when one is configured. A failed insert is
// logged and counted but otherwise invisible to the caller.
type DBSink struct {
	store    Store
	archiver *Archiver
	metrics  metrics.Metrics
	logger   *utils.Logger
}

// NewDBSink creates a sink over the store. archiver may be nil.
func NewDBSink(store Store, archiver *Archiver, m metrics.Metrics) *DBSink {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &DBSink{
		store:    store,
		archiver: archiver,
		metrics:  m,
		logger:   utils.NewLogger("audit-sink", utils.Info),
	}
}

// Record persists the entry. ID and CreatedAt are filled in when the
// caller left them zero.
func (s *DBSink) Record(ctx context.Context, entry *models.AuditLogEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		s.metrics.RecordAuditWriteFailure()
		s.logger.Error("Failed to persist audit entry",
			"request_id", entry.RequestID,
			"outcome", entry.Outcome,
			"error", err,
		)
		return
	}

	if s.archiver != nil {
		if err := s.archiver.Enqueue(ctx, entry); err != nil {
			s.logger.Warn("Failed to enqueue audit entry for archival", "request_id", entry.RequestID, "error", err)
		}
	}
}

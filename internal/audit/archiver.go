package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meter_gateway/internal/models"
	"meter_gateway/internal/queue"
	"meter_gateway/internal/utils"
)

// BatchWriter ships a batch of entries to long-term storage and returns a
// location identifier (an S3 key or a file path).
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []*models.AuditLogEntry) (string, error)
}

// Archiver drains audit entries from a queue and ships them in batches.
// The database insert has already happened by the time an entry gets here;
// archival is best-effort with retries, and batches that exhaust their
// retries land in the dead letter queue entry by entry.
type Archiver struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	writer      BatchWriter
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewArchiver creates an archiver over the queue and writer.
func NewArchiver(q queue.Queue, dlq queue.DeadLetterQueue, writer BatchWriter, config *queue.Config) *Archiver {
	if config == nil {
		config = queue.DefaultConfig("audit_archive")
	}

	return &Archiver{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		config:      config,
		logger:      utils.NewLogger("audit-archiver", utils.Info),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine.
func (a *Archiver) Start(ctx context.Context) {
	go a.run(ctx)
}

// Stop signals the worker and waits for it to drain the queue.
func (a *Archiver) Stop() error {
	close(a.stopChan)
	<-a.stoppedChan
	return nil
}

// Enqueue adds an already-persisted entry for archival.
func (a *Archiver) Enqueue(ctx context.Context, entry *models.AuditLogEntry) error {
	return a.queue.Enqueue(ctx, entry)
}

func (a *Archiver) run(ctx context.Context) {
	defer close(a.stoppedChan)

	for {
		select {
		case <-a.stopChan:
			a.drain(ctx)
			a.logger.Info("Audit archiver stopped")
			return
		case <-ctx.Done():
			a.logger.Info("Audit archiver context cancelled")
			return
		default:
			a.processBatch(ctx)
		}
	}
}

// drain ships whatever is still queued before shutdown completes.
func (a *Archiver) drain(ctx context.Context) {
	for {
		length, err := a.queue.Length(ctx)
		if err != nil || length == 0 {
			return
		}
		a.processBatch(ctx)
	}
}

func (a *Archiver) processBatch(ctx context.Context) {
	items, err := a.queue.DequeueWithTimeout(ctx, a.config.BatchSize, a.config.BatchTimeout)
	if err != nil {
		a.logger.Error("Failed to dequeue audit entries", "error", err)
		time.Sleep(1 * time.Second)
		return
	}

	if len(items) == 0 {
		return
	}

	entries := make([]*models.AuditLogEntry, 0, len(items))
	for _, item := range items {
		var entry models.AuditLogEntry
		if err := a.unmarshalItem(item, &entry); err != nil {
			a.logger.Error("Failed to unmarshal audit entry", "error", err)
			continue
		}
		entries = append(entries, &entry)
	}

	if len(entries) == 0 {
		return
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			a.logger.Debug("Retrying archive batch", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		location, err := a.writer.WriteBatch(ctx, entries)
		if err != nil {
			lastErr = err
			a.logger.Error("Failed to write archive batch", "attempt", attempt, "count", len(entries), "error", err)
			continue
		}

		a.logger.Debug("Archived audit batch", "location", location, "count", len(entries))
		return
	}

	// Max retries exceeded; preserve the entries individually.
	if a.dlq != nil {
		for _, entry := range entries {
			if err := a.dlq.Add(ctx, entry, lastErr); err != nil {
				a.logger.Error("Failed to add audit entry to dead letter queue", "request_id", entry.RequestID, "error", err)
			}
		}
		a.logger.Warn("Audit batch moved to DLQ", "count", len(entries), "error", lastErr)
	}
}

func (a *Archiver) unmarshalItem(item interface{}, entry *models.AuditLogEntry) error {
	switch v := item.(type) {
	case *models.AuditLogEntry:
		*entry = *v
		return nil
	case models.AuditLogEntry:
		*entry = v
		return nil
	case []byte:
		return json.Unmarshal(v, entry)
	case json.RawMessage:
		return json.Unmarshal(v, entry)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, entry)
	}
}

// GetQueueLength returns the current queue length.
func (a *Archiver) GetQueueLength(ctx context.Context) (int, error) {
	return a.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue.
func (a *Archiver) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if a.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return a.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed item from the dead letter queue.
func (a *Archiver) RetryDeadLetterItem(ctx context.Context, id string) error {
	if a.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := a.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID == id {
			if err := a.queue.Enqueue(ctx, dlItem.Item); err != nil {
				return fmt.Errorf("failed to re-enqueue item: %w", err)
			}
			if err := a.dlq.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove from DLQ: %w", err)
			}
			return nil
		}
	}

	return fmt.Errorf("item not found in dead letter queue")
}

package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meter_gateway/internal/models"
	"meter_gateway/internal/queue"
)

// mockBatchWriter records batches and can fail a set number of times.
type mockBatchWriter struct {
	mu        sync.Mutex
	batches   [][]*models.AuditLogEntry
	failCount int
	maxFails  int
}

func (w *mockBatchWriter) WriteBatch(ctx context.Context, entries []*models.AuditLogEntry) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failCount < w.maxFails {
		w.failCount++
		return "", fmt.Errorf("simulated archive error")
	}
	w.batches = append(w.batches, entries)
	return fmt.Sprintf("batch-%d", len(w.batches)), nil
}

func (w *mockBatchWriter) totalEntries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func fastConfig() *queue.Config {
	return &queue.Config{
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
		MaxRetries:   2,
		RetryBackoff: 10 * time.Millisecond,
		QueueName:    "audit_archive_test",
	}
}

func testEntry(requestID string) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		ID:         uuid.New(),
		RequestID:  requestID,
		Method:     "POST",
		Path:       "/v1/forecast",
		StatusCode: 200,
		Outcome:    models.AuditOutcomeSuccess,
		CreatedAt:  time.Now(),
	}
}

func TestArchiverShipsBatches(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	writer := &mockBatchWriter{}

	archiver := NewArchiver(q, nil, writer, cfg)
	archiver.Start(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, archiver.Enqueue(ctx, testEntry(fmt.Sprintf("req-%d", i))))
	}

	require.Eventually(t, func() bool {
		return writer.totalEntries() == 5
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, archiver.Stop())
}

func TestArchiverRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	writer := &mockBatchWriter{maxFails: 2}

	archiver := NewArchiver(q, nil, writer, cfg)
	archiver.Start(ctx)

	require.NoError(t, archiver.Enqueue(ctx, testEntry("req-retry")))

	require.Eventually(t, func() bool {
		return writer.totalEntries() == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, archiver.Stop())
}

func TestArchiverExhaustedRetriesGoToDLQ(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue()
	defer dlq.Close()
	writer := &mockBatchWriter{maxFails: 100}

	archiver := NewArchiver(q, dlq, writer, cfg)
	archiver.Start(ctx)

	require.NoError(t, archiver.Enqueue(ctx, testEntry("req-doomed")))

	require.Eventually(t, func() bool {
		items, err := dlq.List(ctx, 10)
		return err == nil && len(items) == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, archiver.Stop())
	assert.Equal(t, 0, writer.totalEntries())
}

func TestArchiverDrainsOnStop(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.BatchTimeout = 100 * time.Millisecond
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	writer := &mockBatchWriter{}

	archiver := NewArchiver(q, nil, writer, cfg)

	for i := 0; i < 3; i++ {
		require.NoError(t, archiver.Enqueue(ctx, testEntry(fmt.Sprintf("req-%d", i))))
	}

	// Everything queued before the stop signal must be shipped by the
	// time Stop returns.
	archiver.Start(ctx)
	require.NoError(t, archiver.Stop())

	assert.Equal(t, 3, writer.totalEntries())
}

func TestArchiverRetryDeadLetterItem(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue()
	defer dlq.Close()
	writer := &mockBatchWriter{}

	archiver := NewArchiver(q, dlq, writer, cfg)

	entry := testEntry("req-recovered")
	require.NoError(t, dlq.Add(ctx, entry, fmt.Errorf("historic failure")))

	items, err := archiver.GetDeadLetterItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, archiver.RetryDeadLetterItem(ctx, items[0].ID))

	length, err := archiver.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	items, err = archiver.GetDeadLetterItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileWriterRotation(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "audit-%s.jsonl")

	writer, err := NewFileWriter(template, 200, 2)
	require.NoError(t, err)
	defer writer.Close()

	ctx := context.Background()
	var locations []string
	for i := 0; i < 6; i++ {
		loc, err := writer.WriteBatch(ctx, []*models.AuditLogEntry{testEntry(fmt.Sprintf("req-%d", i))})
		require.NoError(t, err)
		locations = append(locations, loc)
	}

	// Entries are ~300 bytes each against a 200 byte cap, so every batch
	// after the first lands in a fresh file and old ones get pruned.
	matches, err := filepath.Glob(fmt.Sprintf(template, "*"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 3)
	assert.NotEqual(t, locations[0], locations[len(locations)-1])
}

// Package queue is a small batching queue with two interchangeable
// backends, used to decouple the audit archive export from the request
// path.
//
// The in-memory backend is channel-based: nothing survives a restart and
// nothing outside the process is needed, which suits standalone and
// development deployments. The Redis backend keeps items in a Redis list,
// survives restarts and lets several archiver replicas drain the same
// queue.
//
// Flow for the archive export:
//
//	request -> audit entry (synchronous DB insert) -> archive queue
//	archive queue -> archiver (batches) -> S3/file JSONL
//	                                   \-> dead-letter queue after retries
//
// Batches fill up to BatchSize or flush after BatchTimeout; failed writes
// retry with exponential backoff and land in the dead-letter queue once
// MaxRetries is exhausted. Close drains gracefully.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queue is the producer/consumer contract shared by both backends.
type Queue interface {
	// Enqueue adds an item to the queue.
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue retrieves up to maxItems, blocking until at least one item
	// is available or the context is cancelled.
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout retrieves up to maxItems, returning an empty
	// slice when nothing arrives before the timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length.
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully.
	Close() error
}

// DeadLetterQueue holds items that exhausted their retries, for operator
// inspection and replay.
type DeadLetterQueue interface {
	// Add records a failed item together with the error that killed it.
	Add(ctx context.Context, item interface{}, err error) error

	// List retrieves up to maxItems entries.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes an entry by ID.
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue.
	Close() error
}

// DeadLetterItem is one failed item with its failure context.
type DeadLetterItem struct {
	ID        string
	Item      interface{}
	Error     string
	Timestamp time.Time
	Retries   int
}

// Config holds queue configuration shared by the queue, the dead-letter
// queue and the consumer loop.
type Config struct {
	// BatchSize is the maximum number of items to process in a batch.
	BatchSize int

	// BatchTimeout is how long to wait before flushing a partial batch.
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of write attempts per batch.
	MaxRetries int

	// RetryBackoff is the initial backoff; it doubles on each retry.
	RetryBackoff time.Duration

	// UseRedis selects the Redis backend over the in-memory one.
	UseRedis bool

	// Redis connection settings, used when UseRedis is set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// QueueName is the name/key for the queue.
	QueueName string
}

// DefaultConfig returns the defaults both backends start from.
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		UseRedis:     false,
		QueueName:    queueName,
	}
}

func newDeadLetterID() string {
	return uuid.NewString()
}

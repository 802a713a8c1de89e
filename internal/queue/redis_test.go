package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func redisTestConfig(t *testing.T, name string) *Config {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	config := DefaultConfig(name)
	config.UseRedis = true
	config.RedisAddr = mr.Addr()
	return config
}

func TestRedisQueueRoundTrip(t *testing.T) {
	config := redisTestConfig(t, "redis-roundtrip")

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	if err := q.Enqueue(ctx, map[string]string{"request_id": "req-1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err := q.Dequeue(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	// Items come back as raw JSON for the consumer to decode.
	raw, ok := items[0].(json.RawMessage)
	if !ok {
		t.Fatalf("Expected json.RawMessage, got %T", items[0])
	}

	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Failed to decode item: %v", err)
	}
	if decoded["request_id"] != "req-1" {
		t.Errorf("Expected request_id req-1, got %s", decoded["request_id"])
	}
}

func TestRedisQueueBatching(t *testing.T) {
	config := redisTestConfig(t, "redis-batching")
	config.BatchSize = 5

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, map[string]any{"request_id": i}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 10 {
		t.Errorf("Expected length 10, got %d", length)
	}

	items, err := q.Dequeue(ctx, 5)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}

	items, err = q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected remaining 5 items, got %d", len(items))
	}
}

func TestRedisQueueDequeueTimeout(t *testing.T) {
	config := redisTestConfig(t, "redis-timeout")

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	items, err := q.DequeueWithTimeout(ctx, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected 0 items from empty queue, got %d", len(items))
	}

	if err := q.Enqueue(ctx, map[string]string{"request_id": "req-2"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err = q.DequeueWithTimeout(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("Expected 1 item, got %d", len(items))
	}
}

func TestRedisQueueSurvivesReconnect(t *testing.T) {
	config := redisTestConfig(t, "redis-persistence")

	q1, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q1.Enqueue(ctx, map[string]any{"request_id": i}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if err := q1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A fresh queue over the same Redis sees the items.
	q2, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q2.Close()

	length, err := q2.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 3 {
		t.Errorf("Expected 3 items after reconnect, got %d", length)
	}
}

func TestRedisDeadLetterQueue(t *testing.T) {
	config := redisTestConfig(t, "redis-dlq")

	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq.Close()

	ctx := context.Background()

	if err := dlq.Add(ctx, map[string]string{"request_id": "req-3"}, ErrMaxRetriesExceeded); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := dlq.Add(ctx, map[string]string{"request_id": "req-4"}, ErrMaxRetriesExceeded); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	for _, item := range items {
		if item.ID == "" {
			t.Error("Expected non-empty ID")
		}
		if item.Error != ErrMaxRetriesExceeded.Error() {
			t.Errorf("Expected error %q, got %q", ErrMaxRetriesExceeded.Error(), item.Error)
		}
	}

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	items, err = dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("Expected 1 item after removal, got %d", len(items))
	}
}

func TestRedisDeadLetterQueueListLimit(t *testing.T) {
	config := redisTestConfig(t, "redis-dlq-limit")

	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := dlq.Add(ctx, map[string]any{"request_id": i}, ErrMaxRetriesExceeded); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	items, err := dlq.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items with limit, got %d", len(items))
	}
}

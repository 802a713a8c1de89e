package queue

import "errors"

var (
	// ErrQueueClosed is returned when operating on a queue after Close.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned by Remove for an unknown ID.
	ErrItemNotFound = errors.New("item not found")

	// ErrMaxRetriesExceeded tags dead-letter entries whose batch ran out
	// of write attempts.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

package logbus

import (
	"context"
	"time"
)

// Record is what the host logging framework hands to a forwarder.
// Message is already formatted. A zero Created means "now".
type Record struct {
	Level       string
	Message     string
	Created     time.Time
	Destination Destination
}

// Forwarder republishes records onto broker queues.
// Emit never returns an error and never blocks on the broker in non-blocking mode.
// Implementations must be safe for concurrent use by multiple goroutines.
type Forwarder interface {
	Emit(rec Record)
	DefaultQueue() QueueName
	SetDefaultQueue(ctx context.Context, q QueueName) error
	Close(ctx context.Context) error
}

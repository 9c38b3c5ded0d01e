package logbus

import (
	"context"
	"time"
)

// ContentTypeJSON is the content type of every Entry body.
const ContentTypeJSON = "application/json"

// Message is one publish against the default exchange.
type Message struct {
	RoutingKey      string
	Body            []byte
	ContentType     string
	ContentEncoding string
	MessageID       string
	AppID           string
	Timestamp       time.Time
	Persistent      bool
	Headers         map[string]string
}

// Dialer opens a transport connection to the broker.
// Adapters are expected to keep the connection alive on their own once Dial succeeds.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// Connection is a live broker connection.
type Connection interface {
	Channel(ctx context.Context) (Channel, error)
	Close() error
}

// Channel publishes to and declares queues on the broker.
type Channel interface {
	// DeclareQueue creates a durable queue if absent. It must be idempotent.
	DeclareQueue(ctx context.Context, name string) error
	Publish(ctx context.Context, m Message) error
}

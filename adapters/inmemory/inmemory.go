package inmemory

import (
	"context"
	"errors"
	"sync"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// Broker is a thread-safe in-memory implementation of logbus.Dialer.
// It records declared queues and published messages for testing and examples.
// All connections dialed from one Broker share its state.
type Broker struct {
	mu        sync.Mutex
	declared  []string
	published []logbus.Message
	dials     int
	closed    int

	// DialErr, DeclareErr and PublishErr are returned by the matching operation when set.
	DialErr    error
	DeclareErr error
	PublishErr error

	// Gate, when non-nil, holds Dial until it is closed or the dial context ends.
	Gate chan struct{}

	notify chan struct{}
}

// Ensure Broker implements the dialer contract.
var _ logbus.Dialer = (*Broker)(nil)

// New creates a new in-memory broker.
func New() *Broker { return &Broker{} }

func (b *Broker) Dial(ctx context.Context) (logbus.Connection, error) {
	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.DialErr != nil {
		return nil, b.DialErr
	}

	return &conn{b: b}, nil
}

// Declared returns every DeclareQueue call in order, duplicates included.
func (b *Broker) Declared() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.declared...)
}

// DeclareCount returns how many times name was declared.
func (b *Broker) DeclareCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, d := range b.declared {
		if d == name {
			n++
		}
	}

	return n
}

// Published returns every published message in arrival order.
func (b *Broker) Published() []logbus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]logbus.Message(nil), b.published...)
}

// Queue returns the messages routed to name.
func (b *Broker) Queue(name string) []logbus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []logbus.Message
	for _, m := range b.published {
		if m.RoutingKey == name {
			out = append(out, m)
		}
	}

	return out
}

// Dials returns how many times Dial was called.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dials
}

// Closed returns how many connections were closed.
func (b *Broker) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// WaitPublished blocks until at least n messages were published or ctx ends.
func (b *Broker) WaitPublished(ctx context.Context, n int) ([]logbus.Message, error) {
	for {
		b.mu.Lock()
		msgs := append([]logbus.Message(nil), b.published...)
		wake := b.signalLocked()
		b.mu.Unlock()

		if len(msgs) >= n {
			return msgs, nil
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return msgs, ctx.Err()
		}
	}
}

// SetPublishErr swaps the publish error under the broker lock.
func (b *Broker) SetPublishErr(err error) {
	b.mu.Lock()
	b.PublishErr = err
	b.mu.Unlock()
}

type conn struct {
	b      *Broker
	mu     sync.Mutex
	closed bool
}

func (c *conn) Channel(ctx context.Context) (logbus.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("inmemory: connection closed")
	}

	return &channel{c: c}, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.b.mu.Lock()
	c.b.closed++
	c.b.mu.Unlock()

	return nil
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

type channel struct{ c *conn }

func (ch *channel) DeclareQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ch.c.isClosed() {
		return berr.ErrChannelNotReady
	}

	b := ch.c.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.DeclareErr != nil {
		return b.DeclareErr
	}

	b.declared = append(b.declared, name)

	return nil
}

func (ch *channel) Publish(ctx context.Context, m logbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ch.c.isClosed() {
		return berr.ErrChannelNotReady
	}

	b := ch.c.b
	b.mu.Lock()
	if b.PublishErr != nil {
		err := b.PublishErr
		b.mu.Unlock()

		return err
	}

	m.Body = append([]byte(nil), m.Body...)
	b.published = append(b.published, m)
	b.broadcastLocked()
	b.mu.Unlock()

	return nil
}

// signalLocked returns the channel closed by the next publish. b.mu must be held.
func (b *Broker) signalLocked() chan struct{} {
	if b.notify == nil {
		b.notify = make(chan struct{})
	}

	return b.notify
}

// broadcastLocked wakes every waiter. b.mu must be held.
func (b *Broker) broadcastLocked() {
	if b.notify != nil {
		close(b.notify)
	}

	b.notify = make(chan struct{})
}

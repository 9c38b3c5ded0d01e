package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// Record header keys set on every message.
const (
	HeaderMessageID       = "message-id"
	HeaderContentType     = "content-type"
	HeaderContentEncoding = "content-encoding"
)

const maxTopicLen = 249

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Dialer implements logbus.Dialer on top of a Writer.
type Dialer struct {
	prefix  string
	connect func(ctx context.Context) (Writer, func(), error)
}

// Ensure Dialer implements the dialer contract.
var _ logbus.Dialer = (*Dialer)(nil)

// New creates a Dialer that hands out w. Closing the returned connections
// does not close w.
func New(w Writer, topicPrefix string) *Dialer {
	return &Dialer{
		prefix: topicPrefix,
		connect: func(context.Context) (Writer, func(), error) {
			if w == nil {
				return nil, nil, fmt.Errorf("kafka: nil writer: %w", berr.ErrConnectFailed)
			}

			return w, func() {}, nil
		},
	}
}

func (d *Dialer) Dial(ctx context.Context) (logbus.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, closeFn, err := d.connect(ctx)
	if err != nil {
		if errors.Is(err, berr.ErrConnectFailed) {
			return nil, err
		}

		return nil, fmt.Errorf("kafka dial: %w", errors.Join(berr.ErrConnectFailed, err))
	}

	return &conn{w: w, prefix: d.prefix, closeFn: closeFn}, nil
}

type conn struct {
	w       Writer
	prefix  string
	closeFn func()

	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func (c *conn) Channel(ctx context.Context) (logbus.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.isClosed() {
		return nil, fmt.Errorf("kafka: %w", berr.ErrChannelNotReady)
	}

	return &channel{conn: c}, nil
}

func (c *conn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.closeFn()
	})

	return nil
}

func (c *conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

type channel struct{ conn *conn }

// DeclareQueue checks that name is a legal topic name. Topics are created by
// the broker on first produce.
func (ch *channel) DeclareQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := validTopic(ch.conn.prefix + name); err != nil {
		return fmt.Errorf("kafka declare %q: %w", name, errors.Join(berr.ErrDeclareFailed, err))
	}

	return nil
}

func (ch *channel) Publish(ctx context.Context, m logbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ch.conn.isClosed() {
		return fmt.Errorf("kafka: %w", berr.ErrChannelNotReady)
	}

	topic := ch.conn.prefix + m.RoutingKey
	if err := validTopic(topic); err != nil {
		return fmt.Errorf("kafka publish %q: %w", topic, errors.Join(berr.ErrPublishFailed, err))
	}

	var key []byte
	if m.AppID != "" {
		key = []byte(m.AppID)
	}

	if err := ch.conn.w.Write(ctx, topic, key, m.Body, headers(m)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka publish %q: %w", topic, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func headers(m logbus.Message) map[string]string {
	h := make(map[string]string, len(m.Headers)+3)
	for k, v := range m.Headers {
		h[k] = v
	}

	if m.MessageID != "" {
		h[HeaderMessageID] = m.MessageID
	}

	if m.ContentType != "" {
		h[HeaderContentType] = m.ContentType
	}

	if m.ContentEncoding != "" {
		h[HeaderContentEncoding] = m.ContentEncoding
	}

	return h
}

func validTopic(t string) error {
	if t == "" || t == "." || t == ".." {
		return fmt.Errorf("illegal topic name %q", t)
	}

	if len(t) > maxTopicLen {
		return fmt.Errorf("topic name longer than %d characters", maxTopicLen)
	}

	for _, r := range t {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("topic %q contains illegal character %q", t, r)
		}
	}

	return nil
}

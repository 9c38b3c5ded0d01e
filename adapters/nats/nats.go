package nats

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// Header keys set on every message.
const (
	HeaderMsgID           = "Nats-Msg-Id"
	HeaderContentType     = "Content-Type"
	HeaderContentEncoding = "Content-Encoding"
	HeaderAppID           = "App-Id"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers and waits
	// until the server has processed it.
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Dialer implements logbus.Dialer on top of a Client.
type Dialer struct {
	prefix  string
	connect func(ctx context.Context) (Client, func() error, error)
}

// Ensure Dialer implements the dialer contract.
var _ logbus.Dialer = (*Dialer)(nil)

// New creates a Dialer that hands out c. Closing the returned connections
// does not close c.
func New(c Client, subjectPrefix string) *Dialer {
	return &Dialer{
		prefix: subjectPrefix,
		connect: func(context.Context) (Client, func() error, error) {
			if c == nil {
				return nil, nil, fmt.Errorf("nats: nil client: %w", berr.ErrConnectFailed)
			}

			return c, func() error { return nil }, nil
		},
	}
}

func (d *Dialer) Dial(ctx context.Context) (logbus.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, closeFn, err := d.connect(ctx)
	if err != nil {
		if errors.Is(err, berr.ErrConnectFailed) {
			return nil, err
		}

		return nil, fmt.Errorf("nats dial: %w", errors.Join(berr.ErrConnectFailed, err))
	}

	return &conn{c: c, prefix: d.prefix, closeFn: closeFn}, nil
}

type conn struct {
	c       Client
	prefix  string
	closeFn func() error

	mu     sync.Mutex
	closed bool
}

func (c *conn) Channel(ctx context.Context) (logbus.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.isClosed() {
		return nil, fmt.Errorf("nats: %w", berr.ErrChannelNotReady)
	}

	return &channel{conn: c}, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	return c.closeFn()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

type channel struct{ conn *conn }

// DeclareQueue checks that name is usable as a publish subject.
func (ch *channel) DeclareQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := validSubject(ch.conn.prefix + name); err != nil {
		return fmt.Errorf("nats declare %q: %w", name, errors.Join(berr.ErrDeclareFailed, err))
	}

	return nil
}

func (ch *channel) Publish(ctx context.Context, m logbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ch.conn.isClosed() {
		return fmt.Errorf("nats: %w", berr.ErrChannelNotReady)
	}

	subject := ch.conn.prefix + m.RoutingKey
	if err := validSubject(subject); err != nil {
		return fmt.Errorf("nats publish %q: %w", subject, errors.Join(berr.ErrPublishFailed, err))
	}

	if err := ch.conn.c.Publish(ctx, subject, m.Body, headers(m)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %q: %w", subject, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func headers(m logbus.Message) map[string]string {
	h := make(map[string]string, len(m.Headers)+4)
	maps.Copy(h, m.Headers)

	if m.MessageID != "" {
		h[HeaderMsgID] = m.MessageID
	}

	if m.ContentType != "" {
		h[HeaderContentType] = m.ContentType
	}

	if m.ContentEncoding != "" {
		h[HeaderContentEncoding] = m.ContentEncoding
	}

	if m.AppID != "" {
		h[HeaderAppID] = m.AppID
	}

	return h
}

func validSubject(s string) error {
	switch {
	case s == "":
		return errors.New("empty subject")
	case strings.ContainsAny(s, " \t\r\n*>"):
		return fmt.Errorf("subject %q contains whitespace or wildcards", s)
	case strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, ".."):
		return fmt.Errorf("subject %q has an empty token", s)
	}

	return nil
}

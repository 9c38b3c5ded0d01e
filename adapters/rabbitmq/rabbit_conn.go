package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// amqpConn is the part of *amqp.Connection the session uses.
type amqpConn interface {
	channel() (amqpChannel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// amqpChannel is the part of *amqp.Channel the session uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
	Confirm(noWait bool) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type liveConn struct{ *amqp.Connection }

func (c liveConn) channel() (amqpChannel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

type dialFunc func(ctx context.Context, cfg Config) (amqpConn, error)

// Dialer connects to RabbitMQ. It implements logbus.Dialer.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
	dial   dialFunc
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithLogger sets the logger used for connection loss and recovery.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dialer) {
		if l != nil {
			d.logger = l
		}
	}
}

// Ensure Dialer implements the dialer contract.
var _ logbus.Dialer = (*Dialer)(nil)

// NewDialer validates cfg and returns a Dialer. An empty or malformed URL is
// reported as ErrConnectFailed.
func NewDialer(cfg Config, opts ...Option) (*Dialer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Dialer{cfg: cfg, logger: slog.Default(), dial: dialAMQP}
	for _, o := range opts {
		o(d)
	}

	return d, nil
}

// Dial opens the connection and the channel before returning, then keeps
// them alive in the background until the returned connection is closed.
func (d *Dialer) Dial(ctx context.Context) (logbus.Connection, error) {
	conn, ch, err := d.open(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", joinConnect(err))
	}

	s := &session{
		d:      d,
		conn:   conn,
		ch:     ch,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go s.supervise(conn, ch)

	return s, nil
}

// open dials and opens a channel, re-declaring queues on it.
func (d *Dialer) open(ctx context.Context, queues []string) (amqpConn, amqpChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	conn, err := d.dial(ctx, d.cfg)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if d.cfg.Confirm {
		if err := ch.Confirm(false); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("redeclare %q: %w", q, err)
		}
	}

	return conn, ch, nil
}

func dialAMQP(ctx context.Context, cfg Config) (amqpConn, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat:  cfg.Heartbeat,
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-log-bus", "connection_name": cfg.ConnectionName},
		Dial: func(network, addr string) (net.Conn, error) {
			nd := net.Dialer{Timeout: cfg.ConnTimeout}

			c, err := nd.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			// Cleared by the client once the AMQP handshake completes.
			if err := c.SetDeadline(time.Now().Add(cfg.ConnTimeout)); err != nil {
				_ = c.Close()
				return nil, err
			}

			return c, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return liveConn{conn}, nil
}

// session is one supervised AMQP connection and its single channel.
type session struct {
	d *Dialer

	mu     sync.RWMutex
	conn   amqpConn
	ch     amqpChannel
	queues []string

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// Channel returns a handle bound to the session: after a reconnect it
// publishes on the new channel.
func (s *session) Channel(ctx context.Context) (logbus.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.current(); err != nil {
		return nil, err
	}

	return &channel{s: s}, nil
}

func (s *session) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		conn := s.conn
		s.conn, s.ch = nil, nil
		s.mu.Unlock()

		if conn != nil {
			err = conn.Close()
			if errors.Is(err, amqp.ErrClosed) {
				err = nil
			}
		}

		<-s.done
	})

	return err
}

func (s *session) current() (amqpChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ch == nil {
		return nil, fmt.Errorf("rabbitmq: %w", berr.ErrChannelNotReady)
	}

	return s.ch, nil
}

func (s *session) remember(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.queues, name) {
		s.queues = append(s.queues, name)
	}
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// supervise waits for the connection or the channel to close and recovers.
func (s *session) supervise(conn amqpConn, ch amqpChannel) {
	defer close(s.done)

	for {
		connLost := conn.NotifyClose(make(chan *amqp.Error, 1))
		chLost := ch.NotifyClose(make(chan *amqp.Error, 1))

		var reason *amqp.Error

		select {
		case <-s.closed:
			return
		case reason = <-connLost:
		case reason = <-chLost:
		}

		if s.isClosed() {
			return
		}

		s.d.logger.Warn("rabbitmq connection lost, reconnecting", "err", reason)

		s.mu.Lock()
		s.conn, s.ch = nil, nil
		s.mu.Unlock()

		_ = conn.Close()

		var ok bool
		if conn, ch, ok = s.reconnect(); !ok {
			return
		}
	}
}

// reconnect redials with jittered exponential backoff until it succeeds or the
// session is closed.
func (s *session) reconnect() (amqpConn, amqpChannel, bool) {
	backoff := s.d.cfg.MinBackoff
	maxBackoff := s.d.cfg.MaxBackoff

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; ; attempt++ {
		s.mu.RLock()
		queues := slices.Clone(s.queues)
		s.mu.RUnlock()

		conn, ch, err := s.d.open(ctx, queues)
		if err == nil {
			s.mu.Lock()
			if s.isClosed() {
				s.mu.Unlock()
				_ = conn.Close()

				return nil, nil, false
			}

			s.conn, s.ch = conn, ch
			s.mu.Unlock()

			s.d.logger.Info("rabbitmq connection restored", "attempt", attempt, "queues", len(queues))

			return conn, ch, true
		}

		s.d.logger.Warn("rabbitmq reconnect failed", "attempt", attempt, "err", err)

		t := time.NewTimer(jitter(backoff))
		select {
		case <-s.closed:
			t.Stop()
			return nil, nil, false
		case <-t.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	return d + time.Duration(rand.Int64N(int64(d)/4+1)) //nolint:gosec // backoff jitter
}

func joinConnect(err error) error {
	if errors.Is(err, berr.ErrConnectFailed) {
		return err
	}

	return errors.Join(berr.ErrConnectFailed, err)
}

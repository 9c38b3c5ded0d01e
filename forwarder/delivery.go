package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

const unknownHost = "unknown"

// base holds what Handler and SyncHandler share: configuration, the default
// queue, the lifecycle manager and the delivery path.
type base struct {
	service string
	opts    options
	logger  *slog.Logger
	diag    *rate.Limiter
	life    *lifecycle
	table   *DestinationTable
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	queue  logbus.QueueName
	closed bool
	wg     sync.WaitGroup
}

func newBase(d logbus.Dialer, q logbus.QueueName, service string, opts []Option) (*base, error) {
	if d == nil {
		return nil, fmt.Errorf("forwarder: nil dialer: %w", berr.ErrConnectFailed)
	}

	if !q.Valid() {
		return nil, fmt.Errorf("forwarder: default queue %q: %w", q, berr.ErrInvalidQueue)
	}

	o := defaultOptions()
	for _, f := range opts {
		f(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = defaultLogger()
	}

	table := newDestinationTable()
	ctx, cancel := context.WithCancel(context.Background())

	return &base{
		service: service,
		opts:    o,
		logger:  logger,
		diag:    rate.NewLimiter(o.diagLimit, o.diagBurst),
		life:    newLifecycle(d, table, logger),
		table:   table,
		ctx:     ctx,
		cancel:  cancel,
		queue:   q,
	}, nil
}

// DefaultQueue returns the queue used when a record carries no destination.
func (b *base) DefaultQueue() logbus.QueueName {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.queue
}

// SetDefaultQueue changes the default queue and declares it on the current
// channel, blocking the caller for that round trip. Names outside the registry
// are rejected with ErrInvalidQueue and leave the default unchanged. When the
// channel is not ready yet the bootstrap declares the new default instead.
func (b *base) SetDefaultQueue(ctx context.Context, q logbus.QueueName) error {
	if !q.Valid() {
		return fmt.Errorf("set default queue %q: %w", q, berr.ErrInvalidQueue)
	}

	b.mu.Lock()
	b.queue = q
	b.mu.Unlock()

	ch, ok := b.life.channel()
	if !ok {
		return nil
	}

	if err := b.life.ensureDeclared(ctx, ch, string(q)); err != nil {
		return fmt.Errorf("set default queue %q: %w", q, errors.Join(berr.ErrDeclareFailed, err))
	}

	return nil
}

// State returns the connection state.
func (b *base) State() State {
	s, _ := b.life.snapshot()
	return s
}

// Err returns the bootstrap error, if any.
func (b *base) Err() error {
	_, err := b.life.snapshot()
	return err
}

// Declared returns the queue names declared on this connection, sorted.
func (b *base) Declared() []string { return b.table.Names() }

// Stats returns a snapshot of the delivery counters.
func (b *base) Stats() StatsSnapshot { return b.stats.snapshot() }

// Close stops accepting records, waits for in-flight deliveries until ctx ends,
// then cancels whatever is left and closes the connection. It is idempotent.
func (b *base) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	b.cancel()

	return errors.Join(waitErr, b.life.close())
}

// acquire registers one in-flight delivery unless the forwarder is closed.
func (b *base) acquire() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	b.wg.Add(1)

	return true
}

// prepare builds the entry and resolves the destination: the record's own
// destination wins over the default.
func (b *base) prepare(rec logbus.Record) (logbus.Entry, logbus.Destination) {
	created := rec.Created
	if created.IsZero() {
		created = time.Now()
	}

	host, err := b.opts.hostname()
	if err != nil || host == "" {
		host = unknownHost
	}

	dest := rec.Destination
	if dest.IsZero() {
		dest = logbus.Known(b.DefaultQueue())
	}

	return logbus.NewEntry(b.service, rec.Level, rec.Message, created, host), dest
}

// send is the delivery path: wait for the channel, declare a non-default
// destination, then publish the entry persistently.
func (b *base) send(ctx context.Context, dest logbus.Destination, e logbus.Entry, grace time.Duration) error {
	ch, ok := b.life.await(ctx, grace)
	if !ok {
		return fmt.Errorf("deliver to %q: %w", dest.Name(), berr.ErrChannelNotReady)
	}

	name := dest.Name()
	if name != string(b.DefaultQueue()) && !(b.opts.cacheDecl && b.table.Has(name)) {
		if err := b.life.ensureDeclared(ctx, ch, name); err != nil {
			return wrap(fmt.Sprintf("declare %q", name), berr.ErrDeclareFailed, err)
		}
	}

	m, err := b.message(name, e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := b.life.publish(ctx, ch, m); err != nil {
		return wrap(fmt.Sprintf("publish to %q", name), berr.ErrPublishFailed, err)
	}

	b.stats.published.Add(1)

	return nil
}

func (b *base) message(routingKey string, e logbus.Entry) (logbus.Message, error) {
	body, err := e.Encode()
	if err != nil {
		return logbus.Message{}, err
	}

	m := logbus.Message{
		RoutingKey:  routingKey,
		ContentType: logbus.ContentTypeJSON,
		MessageID:   b.opts.messageID(),
		AppID:       b.service,
		Timestamp:   time.Now(),
		Persistent:  true,
	}

	if b.opts.compress {
		body, err = gzipBody(body, b.opts.level)
		if err != nil {
			return logbus.Message{}, err
		}

		m.ContentEncoding = "gzip"
	}

	m.Body = body

	return m, nil
}

func gzipBody(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}

	if _, err := zw.Write(body); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// report counts the outcome of one delivery and writes its diagnostic.
func (b *base) report(dest logbus.Destination, e logbus.Entry, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, berr.ErrHandlerClosed):
		b.stats.dropped.Add(1)
		b.diagnose(slog.LevelWarn, "forwarder closed, dropping log message", dest, e, err)

		return
	case errors.Is(err, berr.ErrChannelNotReady):
		b.stats.dropped.Add(1)
		b.diagnose(slog.LevelWarn, "channel not ready, dropping log message", dest, e, err)

		return
	}

	b.stats.failed.Add(1)
	b.diagnose(slog.LevelError, "failed to deliver log record", dest, e, err)
}

func (b *base) diagnose(level slog.Level, msg string, dest logbus.Destination, e logbus.Entry, err error) {
	if !b.diag.Allow() {
		b.stats.suppressed.Add(1)
		return
	}

	b.logger.Log(context.Background(), level, msg,
		"queue", dest.Name(),
		"entry", e.String(),
		"err", err,
	)
}

// recoverDelivery turns a panic in the delivery path into a failed delivery.
func (b *base) recoverDelivery(dest logbus.Destination, e logbus.Entry) {
	if r := recover(); r != nil {
		b.report(dest, e, fmt.Errorf("delivery panic: %v: %w", r, berr.ErrPublishFailed))
	}
}

func wrap(label string, kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%s: %w", label, errors.Join(kind, err))
}

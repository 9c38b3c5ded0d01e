package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// State is the connection state of a forwarder.
type State int32

const (
	StateUnconnected State = iota
	StateConnecting
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "Unconnected"
	case StateConnecting:
		return "Connecting"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// lifecycle owns the single connection and channel of a forwarder.
// Reconnection after a successful bootstrap is left to the transport.
type lifecycle struct {
	dialer logbus.Dialer
	table  *DestinationTable
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	conn    logbus.Connection
	ch      logbus.Channel
	err     error
	closing bool

	// chMu serializes operations on the channel: at most one declare or
	// publish is in flight at a time.
	chMu sync.Mutex

	settled     chan struct{} // closed once bootstrap reaches Ready or Failed
	settledOnce sync.Once
}

func newLifecycle(d logbus.Dialer, table *DestinationTable, logger *slog.Logger) *lifecycle {
	return &lifecycle{
		dialer:  d,
		table:   table,
		logger:  logger,
		settled: make(chan struct{}),
	}
}

// bootstrap dials, opens the channel and declares the default queue.
// It runs once per forwarder; a failure is terminal.
func (l *lifecycle) bootstrap(ctx context.Context, defaultQueue func() logbus.QueueName) error {
	l.mu.Lock()
	if l.state != StateUnconnected {
		l.mu.Unlock()
		return fmt.Errorf("bootstrap in state %s: %w", l.state, berr.ErrConnectFailed)
	}
	l.state = StateConnecting
	l.mu.Unlock()

	conn, err := l.dialer.Dial(ctx)
	if err != nil {
		return l.fail(fmt.Errorf("dial: %w", errors.Join(berr.ErrConnectFailed, err)))
	}

	ch, err := conn.Channel(ctx)
	if err != nil {
		_ = conn.Close()
		return l.fail(fmt.Errorf("open channel: %w", errors.Join(berr.ErrConnectFailed, err)))
	}

	q := defaultQueue()
	if err := ch.DeclareQueue(ctx, string(q)); err != nil {
		_ = conn.Close()
		return l.fail(fmt.Errorf("declare default queue %q: %w", q, errors.Join(berr.ErrConnectFailed, err)))
	}

	l.table.Add(string(q))

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		_ = conn.Close()

		return l.fail(fmt.Errorf("bootstrap: %w", berr.ErrHandlerClosed))
	}

	l.conn = conn
	l.ch = ch
	l.state = StateReady
	l.mu.Unlock()
	l.settle()

	l.logger.Info("connection ready", "queue", string(q))

	// The default may have moved while the bootstrap was in flight.
	if cur := defaultQueue(); cur != q {
		if err := l.ensureDeclared(ctx, ch, string(cur)); err != nil {
			l.logger.Error("declare default queue", "queue", string(cur), "err", err)
		}
	}

	return nil
}

func (l *lifecycle) fail(err error) error {
	l.mu.Lock()
	closing := l.closing
	if !closing {
		l.state = StateFailed
	}
	l.err = err
	l.mu.Unlock()
	l.settle()

	if !closing {
		l.logger.Error("connection failed", "err", err)
	}

	return err
}

func (l *lifecycle) settle() {
	l.settledOnce.Do(func() { close(l.settled) })
}

// channel returns the current channel without blocking.
func (l *lifecycle) channel() (logbus.Channel, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state != StateReady || l.ch == nil {
		return nil, false
	}

	return l.ch, true
}

// await waits at most once for grace, returning early if the bootstrap settles,
// then re-checks readiness.
func (l *lifecycle) await(ctx context.Context, grace time.Duration) (logbus.Channel, bool) {
	if ch, ok := l.channel(); ok {
		return ch, true
	}

	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-l.settled:
		case <-t.C:
		case <-ctx.Done():
		}
		t.Stop()
	}

	return l.channel()
}

func (l *lifecycle) ensureDeclared(ctx context.Context, ch logbus.Channel, name string) error {
	if err := l.declare(ctx, ch, name); err != nil {
		return err
	}

	l.table.Add(name)

	return nil
}

func (l *lifecycle) declare(ctx context.Context, ch logbus.Channel, name string) error {
	l.chMu.Lock()
	defer l.chMu.Unlock()

	return ch.DeclareQueue(ctx, name)
}

func (l *lifecycle) publish(ctx context.Context, ch logbus.Channel, m logbus.Message) error {
	l.chMu.Lock()
	defer l.chMu.Unlock()

	return ch.Publish(ctx, m)
}

func (l *lifecycle) snapshot() (State, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state, l.err
}

// close tears down the connection. A bootstrap still in flight closes its own
// connection when it finishes.
func (l *lifecycle) close() error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return nil
	}

	l.closing = true
	conn := l.conn
	l.conn = nil
	l.ch = nil
	l.state = StateClosed
	l.mu.Unlock()
	l.settle()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

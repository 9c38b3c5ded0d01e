package forwarder

import (
	"fmt"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// Handler is the non-blocking forwarder.
//
// New returns before the broker is reached: the bootstrap runs on its own
// goroutine and races the first records. Every Emit schedules an independent
// delivery goroutine, so deliveries may reach the broker out of emission order.
// There is no backpressure; a slow broker means more goroutines in flight.
//
// Handler is concurrency-safe.
type Handler struct {
	*base
}

// Ensure Handler implements the forwarder contract.
var _ logbus.Forwarder = (*Handler)(nil)

// New constructs a Handler publishing for service with queue as the default
// destination, and starts connecting through d in the background.
func New(d logbus.Dialer, queue logbus.QueueName, service string, opts ...Option) (*Handler, error) {
	b, err := newBase(d, queue, service, opts)
	if err != nil {
		return nil, err
	}

	h := &Handler{base: b}
	go func() { _ = h.life.bootstrap(h.ctx, h.DefaultQueue) }()

	return h, nil
}

// Emit schedules delivery of rec and returns immediately. Failures are reported
// on the diagnostic logger only.
func (h *Handler) Emit(rec logbus.Record) {
	defer func() {
		if r := recover(); r != nil {
			h.stats.failed.Add(1)
			h.logger.Error("emit panic", "panic", fmt.Sprint(r))
		}
	}()

	entry, dest := h.prepare(rec)
	if !h.acquire() {
		h.report(dest, entry, fmt.Errorf("emit: %w", berr.ErrHandlerClosed))
		return
	}

	h.stats.emitted.Add(1)

	go h.deliver(dest, entry)

	h.logger.Info("scheduled log", "queue", dest.Name(), "entry", entry.String())
}

// EmitTo emits a record for dest at level.
func (h *Handler) EmitTo(dest logbus.Destination, level, message string) {
	h.Emit(logbus.Record{Level: level, Message: message, Destination: dest})
}

func (h *Handler) deliver(dest logbus.Destination, e logbus.Entry) {
	defer h.wg.Done()
	defer h.recoverDelivery(dest, e)

	h.report(dest, e, h.send(h.ctx, dest, e, h.opts.grace))
}

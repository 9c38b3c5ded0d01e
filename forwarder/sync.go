package forwarder

import (
	"context"
	"fmt"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// SyncHandler is the blocking forwarder: it connects in NewSync and publishes
// on the caller's goroutine. A slow broker stalls every Emit.
type SyncHandler struct {
	*base
}

// Ensure SyncHandler implements the forwarder contract.
var _ logbus.Forwarder = (*SyncHandler)(nil)

// NewSync connects through d before returning. A connection failure is
// returned to the caller wrapped in ErrConnectFailed.
func NewSync(ctx context.Context, d logbus.Dialer, queue logbus.QueueName, service string, opts ...Option) (*SyncHandler, error) {
	b, err := newBase(d, queue, service, opts)
	if err != nil {
		return nil, err
	}

	if err := b.life.bootstrap(ctx, b.DefaultQueue); err != nil {
		b.cancel()
		return nil, err
	}

	return &SyncHandler{base: b}, nil
}

// Emit publishes rec before returning. Failures are reported on the
// diagnostic logger only.
func (h *SyncHandler) Emit(rec logbus.Record) {
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
	defer h.wg.Done()

	h.stats.emitted.Add(1)

	err := h.send(h.ctx, dest, entry, 0)
	h.report(dest, entry, err)

	if err == nil {
		h.logger.Info("sent log", "queue", dest.Name(), "entry", entry.String())
	}
}

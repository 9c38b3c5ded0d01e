package memory

import (
	"context"

	"github.com/next-trace/scg-log-bus/adapters/inmemory"
	"github.com/next-trace/scg-log-bus/contract/logbus"
	"github.com/next-trace/scg-log-bus/forwarder"
)

// New constructs a non-blocking forwarder for service backed by an in-memory
// broker, and returns the broker for inspection along with a cleanup function
// that closes the forwarder.
func New(service string, queue logbus.QueueName, opts ...forwarder.Option) (*forwarder.Handler, *inmemory.Broker, func(), error) {
	b := inmemory.New()

	h, err := forwarder.New(b, queue, service, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() { _ = h.Close(context.Background()) }

	return h, b, cleanup, nil
}

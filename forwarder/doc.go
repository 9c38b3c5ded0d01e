/*
Package forwarder republishes application log records as durable messages on
broker queues.

Handler is the non-blocking forwarder: construction starts the connection
bootstrap in the background and every Emit schedules its own delivery goroutine,
so a log call never waits on the network. SyncHandler is the blocking variant
that connects up front and publishes on the caller's goroutine.

Both route each record to its per-record destination when one is given and to
the handler's default queue otherwise. Delivery failures are counted and
reported on the diagnostic logger; they never reach the caller.

SlogHandler and NewZapCore attach a forwarder to log/slog and zap loggers.
*/
package forwarder

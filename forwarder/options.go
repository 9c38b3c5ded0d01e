package forwarder

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"
)

// DefaultGraceWait is how long a delivery waits once for a channel that is not ready yet.
const DefaultGraceWait = 100 * time.Millisecond

// Option configures a Handler or SyncHandler.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	grace     time.Duration
	hostname  func() (string, error)
	messageID func() string
	cacheDecl bool
	compress  bool
	level     int
	diagLimit rate.Limit
	diagBurst int
}

func defaultOptions() options {
	return options{
		grace:     DefaultGraceWait,
		hostname:  os.Hostname,
		messageID: uuid.NewString,
		diagLimit: rate.Inf,
		diagBurst: 1,
	}
}

// WithLogger sets the diagnostic logger. It must not route back into the forwarder.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGraceWait sets the single wait applied when the channel is not ready yet.
func WithGraceWait(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.grace = d
		}
	}
}

// WithHostname overrides how the originating host is resolved on each emission.
func WithHostname(fn func() (string, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.hostname = fn
		}
	}
}

// WithMessageID overrides the message id generator (UUIDv4 by default).
func WithMessageID(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.messageID = fn
		}
	}
}

// WithDeclarationCache skips re-declaring a non-default destination that was
// already declared on this connection. Off by default: every publish to a
// non-default destination declares it first.
func WithDeclarationCache(enabled bool) Option {
	return func(o *options) { o.cacheDecl = enabled }
}

// WithCompression gzips message bodies at the given level and marks them with
// content encoding "gzip". A level outside gzip.StatelessCompression through
// gzip.BestCompression falls back to gzip.DefaultCompression.
func WithCompression(level int) Option {
	return func(o *options) {
		if level < gzip.StatelessCompression || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}

		o.compress = true
		o.level = level
	}
}

// WithDiagnosticLimit rate limits drop and failure diagnostics. Counters in
// Stats stay exact; suppressed lines are counted separately.
func WithDiagnosticLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.diagLimit = limit
		if burst > 0 {
			o.diagBurst = burst
		}
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

package forwarder

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// ZapQueue returns the zap field routing an entry to d.
func ZapQueue(d logbus.Destination) zap.Field { return zap.Stringer(QueueKey, d) }

type zapCore struct {
	zapcore.LevelEnabler

	f    logbus.Forwarder
	dest logbus.Destination
}

// NewZapCore returns a zapcore.Core forwarding entries through f. Tee it with
// other cores to keep local output. A "queue" field overrides the destination.
func NewZapCore(f logbus.Forwarder, enab zapcore.LevelEnabler) zapcore.Core {
	if enab == nil {
		enab = zapcore.InfoLevel
	}

	return &zapCore{LevelEnabler: enab, f: f}
}

func (c *zapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	if d, ok := zapDestination(fields); ok {
		clone.dest = d
	}

	return &clone
}

func (c *zapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

func (c *zapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	dest := c.dest
	if d, ok := zapDestination(fields); ok {
		dest = d
	}

	c.f.Emit(logbus.Record{
		Level:       ent.Level.CapitalString(),
		Message:     ent.Message,
		Created:     ent.Time,
		Destination: dest,
	})

	return nil
}

func (c *zapCore) Sync() error { return nil }

func zapDestination(fields []zapcore.Field) (logbus.Destination, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if f.Key != QueueKey {
			continue
		}

		switch f.Type {
		case zapcore.StringType:
			d := logbus.ParseDestination(f.String)
			return d, !d.IsZero()
		case zapcore.StringerType, zapcore.ReflectType:
			return destinationOf(f.Interface)
		}
	}

	return logbus.Destination{}, false
}

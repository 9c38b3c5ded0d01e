package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// QueueKey is the attribute or field key that carries a per-record destination.
const QueueKey = "queue"

// Queue returns the slog attribute routing a record to d.
func Queue(d logbus.Destination) slog.Attr { return slog.Any(QueueKey, d) }

// SlogOptions configures a SlogHandler. A nil *SlogOptions uses the defaults.
type SlogOptions struct {
	// Level is the minimum level forwarded. Defaults to slog.LevelInfo.
	Level slog.Leveler

	// AppendAttrs renders the remaining attributes as key=value pairs after the message.
	AppendAttrs bool
}

// SlogHandler adapts a logbus.Forwarder to slog.Handler.
// A top-level "queue" attribute overrides the destination of that record.
type SlogHandler struct {
	f      logbus.Forwarder
	opts   SlogOptions
	dest   logbus.Destination
	attrs  []string
	prefix string
}

// Ensure SlogHandler implements slog.Handler.
var _ slog.Handler = (*SlogHandler)(nil)

// NewSlogHandler creates a slog.Handler forwarding through f.
func NewSlogHandler(f logbus.Forwarder, opts *SlogOptions) *SlogHandler {
	h := &SlogHandler{f: f}
	if opts != nil {
		h.opts = *opts
	}

	return h
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}

	return level >= minLevel
}

func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	dest := h.dest
	parts := append([]string(nil), h.attrs...)

	r.Attrs(func(a slog.Attr) bool {
		if d, ok := h.destinationAttr(a); ok {
			dest = d
			return true
		}

		if h.opts.AppendAttrs {
			parts = append(parts, h.render(a))
		}

		return true
	})

	msg := r.Message
	if h.opts.AppendAttrs && len(parts) > 0 {
		msg += " " + strings.Join(parts, " ")
	}

	h.f.Emit(logbus.Record{
		Level:       r.Level.String(),
		Message:     msg,
		Created:     r.Time,
		Destination: dest,
	})

	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append([]string(nil), h.attrs...)

	for _, a := range attrs {
		if d, ok := h.destinationAttr(a); ok {
			h2.dest = d
			continue
		}

		if h.opts.AppendAttrs {
			h2.attrs = append(h2.attrs, h.render(a))
		}
	}

	return &h2
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	h2 := *h
	h2.prefix = h.prefix + name + "."

	return &h2
}

// destinationAttr reports whether a is a top-level queue attribute.
func (h *SlogHandler) destinationAttr(a slog.Attr) (logbus.Destination, bool) {
	if h.prefix != "" || a.Key != QueueKey {
		return logbus.Destination{}, false
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		d := logbus.ParseDestination(v.String())
		return d, !d.IsZero()
	case slog.KindAny:
		return destinationOf(v.Any())
	default:
		return logbus.Destination{}, false
	}
}

func (h *SlogHandler) render(a slog.Attr) string {
	return fmt.Sprintf("%s%s=%v", h.prefix, a.Key, a.Value.Resolve())
}

// destinationOf accepts the value types a caller may attach as a queue override.
// A Stringer that panics, such as a nil pointer receiver, yields no override.
func destinationOf(v any) (d logbus.Destination, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d, ok = logbus.Destination{}, false
		}
	}()

	switch x := v.(type) {
	case logbus.Destination:
		d = x
	case logbus.QueueName:
		d = logbus.ParseDestination(string(x))
	case string:
		d = logbus.ParseDestination(x)
	case fmt.Stringer:
		d = logbus.ParseDestination(x.String())
	}

	return d, !d.IsZero()
}

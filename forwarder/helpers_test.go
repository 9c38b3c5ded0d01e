package forwarder_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// syncBuffer is a goroutine-safe diagnostics sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func (b *syncBuffer) Contains(s string) bool { return strings.Contains(b.String(), s) }

func bufLogger() (*slog.Logger, *syncBuffer) {
	b := &syncBuffer{}
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug})), b
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixedHost() (string, error) { return "test-host", nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(2 * time.Millisecond)
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	t.Cleanup(cancel)

	return ctx
}

// fakeForwarder records emitted records for bridge tests.
type fakeForwarder struct {
	mu      sync.Mutex
	records []logbus.Record
	queue   logbus.QueueName
}

func (f *fakeForwarder) Emit(rec logbus.Record) {
	f.mu.Lock()
	f.records = append(f.records, rec)
	f.mu.Unlock()
}

func (f *fakeForwarder) DefaultQueue() logbus.QueueName { return f.queue }

func (f *fakeForwarder) SetDefaultQueue(_ context.Context, q logbus.QueueName) error {
	f.queue = q
	return nil
}

func (f *fakeForwarder) Close(context.Context) error { return nil }

func (f *fakeForwarder) Records() []logbus.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]logbus.Record(nil), f.records...)
}

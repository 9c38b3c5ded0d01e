package forwarder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-log-bus/adapters/inmemory"
	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
	"github.com/next-trace/scg-log-bus/forwarder"
)

func newSync(t *testing.T, b *inmemory.Broker, opts ...forwarder.Option) *forwarder.SyncHandler {
	t.Helper()

	opts = append([]forwarder.Option{
		forwarder.WithLogger(discard()),
		forwarder.WithHostname(fixedHost),
	}, opts...)

	h, err := forwarder.NewSync(t.Context(), b, logbus.QueueLogs, "my_service", opts...)
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}

	t.Cleanup(func() { _ = h.Close(context.Background()) })

	return h
}

func TestSync_ReadyOnReturn(t *testing.T) {
	b := inmemory.New()
	h := newSync(t, b)

	if h.State() != forwarder.StateReady {
		t.Fatalf("want Ready, got %s", h.State())
	}

	if b.DeclareCount("logs") != 1 {
		t.Fatalf("default queue must be declared: %v", b.Declared())
	}
}

func TestSync_EmitPublishesBeforeReturning(t *testing.T) {
	b := inmemory.New()
	h := newSync(t, b)

	h.Emit(logbus.Record{Level: "INFO", Message: "Service started successfully"})

	msgs := b.Published()
	if len(msgs) != 1 || msgs[0].RoutingKey != "logs" {
		t.Fatalf("published: %+v", msgs)
	}

	e, err := logbus.DecodeEntry(msgs[0].Body)
	if err != nil || e.Message != "Service started successfully" || e.Service != "my_service" {
		t.Fatalf("entry=%+v err=%v", e, err)
	}
}

func TestSync_OverrideLeavesDefault(t *testing.T) {
	b := inmemory.New()
	h := newSync(t, b)

	h.Emit(logbus.Record{Level: "ERROR", Message: "Database connection failed", Destination: logbus.Known(logbus.QueueAlerts)})
	h.Emit(logbus.Record{Level: "INFO", Message: "next"})

	if got := len(b.Queue("alerts")); got != 1 {
		t.Fatalf("alerts: %d", got)
	}

	if got := len(b.Queue("logs")); got != 1 {
		t.Fatalf("logs: %d", got)
	}

	if h.DefaultQueue() != logbus.QueueLogs {
		t.Fatalf("default changed to %s", h.DefaultQueue())
	}
}

func TestSync_ConnectFailure(t *testing.T) {
	b := inmemory.New()
	b.DialErr = errors.New("connection refused")

	_, err := forwarder.NewSync(t.Context(), b, logbus.QueueLogs, "svc", forwarder.WithLogger(discard()))
	if !errors.Is(err, berr.ErrConnectFailed) {
		t.Fatalf("want ErrConnectFailed, got %v", err)
	}
}

func TestSync_DeclareDefaultFailure(t *testing.T) {
	b := inmemory.New()
	b.DeclareErr = errors.New("access refused")

	_, err := forwarder.NewSync(t.Context(), b, logbus.QueueLogs, "svc", forwarder.WithLogger(discard()))
	if !berr.IsConnection(err) {
		t.Fatalf("want connection error, got %v", err)
	}

	if b.Closed() != 1 {
		t.Fatalf("connection must be released, closed=%d", b.Closed())
	}
}

func TestSync_InvalidQueue(t *testing.T) {
	_, err := forwarder.NewSync(t.Context(), inmemory.New(), "tools", "svc")
	if !errors.Is(err, berr.ErrInvalidQueue) {
		t.Fatalf("want ErrInvalidQueue, got %v", err)
	}
}

func TestSync_PublishFailureIsSwallowed(t *testing.T) {
	b := inmemory.New()
	logger, diag := bufLogger()
	h := newSync(t, b, forwarder.WithLogger(logger))

	b.SetPublishErr(errors.New("nack"))
	h.Emit(logbus.Record{Level: "INFO", Message: "m"})

	if st := h.Stats(); st.Failed != 1 || st.Emitted != 1 {
		t.Fatalf("stats: %+v", st)
	}

	if !diag.Contains("failed to deliver log record") {
		t.Fatalf("missing diagnostic: %s", diag.String())
	}
}

func TestSync_SetDefaultQueue(t *testing.T) {
	b := inmemory.New()
	h := newSync(t, b)

	if err := h.SetDefaultQueue(t.Context(), logbus.QueueBackups); err != nil {
		t.Fatalf("set default: %v", err)
	}

	h.Emit(logbus.Record{Level: "INFO", Message: "m"})

	if got := len(b.Queue("backups")); got != 1 {
		t.Fatalf("backups: %d", got)
	}

	if b.DeclareCount("backups") != 1 {
		t.Fatalf("declared: %v", b.Declared())
	}
}

func TestSync_EmitAfterClose(t *testing.T) {
	b := inmemory.New()
	h := newSync(t, b)

	if err := h.Close(t.Context()); err != nil {
		t.Fatalf("close: %v", err)
	}

	h.Emit(logbus.Record{Level: "INFO", Message: "late"})

	if st := h.Stats(); st.Dropped != 1 || len(b.Published()) != 0 {
		t.Fatalf("stats=%+v published=%d", st, len(b.Published()))
	}
}

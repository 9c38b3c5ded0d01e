package forwarder_test

import (
	"context"
	"testing"

	"github.com/next-trace/scg-log-bus/contract/logbus"
	"github.com/next-trace/scg-log-bus/forwarder"
)

// panicDialer hands out channels whose declare or publish panics.
type panicDialer struct {
	declare bool
	publish bool
}

func (d panicDialer) Dial(context.Context) (logbus.Connection, error) { return panicConn(d), nil }

type panicConn panicDialer

func (c panicConn) Channel(context.Context) (logbus.Channel, error) { return panicChannel(c), nil }

func (panicConn) Close() error { return nil }

type panicChannel panicConn

func (c panicChannel) DeclareQueue(_ context.Context, name string) error {
	if c.declare && name != string(logbus.QueueLogs) {
		panic("declare exploded")
	}

	return nil
}

func (c panicChannel) Publish(context.Context, logbus.Message) error {
	if c.publish {
		panic("publish exploded")
	}

	return nil
}

func panickingHost() (string, error) { panic("hostname exploded") }

func TestHandler_EmitRecoversPanic(t *testing.T) {
	logger, diag := bufLogger()

	h, err := forwarder.New(panicDialer{}, logbus.QueueLogs, "svc", forwarder.WithLogger(logger), forwarder.WithHostname(panickingHost))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	h.Emit(logbus.Record{Level: "INFO", Message: "m"})

	if err := h.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if st := h.Stats(); st.Failed != 1 || st.Emitted != 0 {
		t.Fatalf("stats: %+v", st)
	}

	if !diag.Contains("emit panic") || !diag.Contains("hostname exploded") {
		t.Fatalf("missing panic diagnostic: %s", diag.String())
	}
}

func TestSync_EmitRecoversPanic(t *testing.T) {
	logger, diag := bufLogger()

	h, err := forwarder.NewSync(t.Context(), panicDialer{}, logbus.QueueLogs, "svc",
		forwarder.WithLogger(logger), forwarder.WithHostname(panickingHost))
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}

	h.Emit(logbus.Record{Level: "INFO", Message: "m"})

	if err := h.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if st := h.Stats(); st.Failed != 1 {
		t.Fatalf("stats: %+v", st)
	}

	if !diag.Contains("emit panic") {
		t.Fatalf("missing panic diagnostic: %s", diag.String())
	}
}

func TestHandler_DeliveryRecoversPublishPanic(t *testing.T) {
	logger, diag := bufLogger()

	h, err := forwarder.New(panicDialer{publish: true}, logbus.QueueLogs, "svc",
		forwarder.WithLogger(logger), forwarder.WithHostname(fixedHost))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	waitReady(t, h)

	h.Emit(logbus.Record{Level: "INFO", Message: "first"})
	waitFor(t, "first failure", func() bool { return h.Stats().Failed == 1 })

	// The channel lock must have been released by the panicking publish.
	h.Emit(logbus.Record{Level: "INFO", Message: "second"})

	if err := h.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if st := h.Stats(); st.Failed != 2 || st.Emitted != 2 || st.Published != 0 {
		t.Fatalf("stats: %+v", st)
	}

	if !diag.Contains("failed to deliver log record") || !diag.Contains("publish exploded") {
		t.Fatalf("missing delivery diagnostic: %s", diag.String())
	}
}

func TestHandler_DeliveryRecoversDeclarePanic(t *testing.T) {
	logger, diag := bufLogger()

	h, err := forwarder.New(panicDialer{declare: true}, logbus.QueueLogs, "svc",
		forwarder.WithLogger(logger), forwarder.WithHostname(fixedHost))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	waitReady(t, h)

	h.EmitTo(logbus.AdHoc("X"), "INFO", "m")
	waitFor(t, "failure", func() bool { return h.Stats().Failed == 1 })

	// A default-queue publish still goes through the channel lock.
	h.Emit(logbus.Record{Level: "INFO", Message: "m"})
	waitFor(t, "publish", func() bool { return h.Stats().Published == 1 })

	if err := h.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !diag.Contains("declare exploded") {
		t.Fatalf("missing delivery diagnostic: %s", diag.String())
	}
}

func TestSync_EmitRecoversPublishPanic(t *testing.T) {
	logger, diag := bufLogger()

	h, err := forwarder.NewSync(t.Context(), panicDialer{publish: true}, logbus.QueueLogs, "svc",
		forwarder.WithLogger(logger), forwarder.WithHostname(fixedHost))
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}

	h.Emit(logbus.Record{Level: "INFO", Message: "a"})
	h.Emit(logbus.Record{Level: "INFO", Message: "b"})

	if err := h.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if st := h.Stats(); st.Failed != 2 || st.Emitted != 2 {
		t.Fatalf("stats: %+v", st)
	}

	if !diag.Contains("publish exploded") {
		t.Fatalf("missing panic diagnostic: %s", diag.String())
	}
}

package logbus_test

import (
	"errors"
	"testing"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

func TestQueues_Registry(t *testing.T) {
	qs := logbus.Queues()
	if len(qs) != 6 {
		t.Fatalf("want 6 queues, got %v", qs)
	}

	for _, q := range qs {
		if !q.Valid() || !logbus.IsKnown(string(q)) {
			t.Fatalf("%s should be known", q)
		}
	}

	qs[0] = "mutated"
	if logbus.Queues()[0] != logbus.QueueLogs {
		t.Fatalf("Queues must return a copy")
	}

	if logbus.IsKnown("tools") || logbus.QueueName("LOGS").Valid() {
		t.Fatalf("unknown names must not validate")
	}
}

func TestParseQueue(t *testing.T) {
	q, err := logbus.ParseQueue("alerts")
	if err != nil || q != logbus.QueueAlerts {
		t.Fatalf("parse alerts: %v %v", q, err)
	}

	if _, err := logbus.ParseQueue("audit"); !errors.Is(err, berr.ErrInvalidQueue) {
		t.Fatalf("want ErrInvalidQueue, got %v", err)
	}
}

func TestDestination(t *testing.T) {
	k := logbus.Known(logbus.QueueTraces)
	if q, ok := k.Queue(); !ok || q != logbus.QueueTraces || k.IsAdHoc() || k.Name() != "traces" {
		t.Fatalf("known destination: %+v", k)
	}

	a := logbus.AdHoc("audit.eu")
	if _, ok := a.Queue(); ok || !a.IsAdHoc() || a.Name() != "audit.eu" {
		t.Fatalf("ad-hoc destination: %+v", a)
	}

	if !logbus.AdHoc("").IsZero() || !(logbus.Destination{}).IsZero() {
		t.Fatalf("empty destinations must be zero")
	}

	if d := logbus.ParseDestination("events"); d.IsAdHoc() {
		t.Fatalf("registry name should parse as known")
	}

	if d := logbus.ParseDestination("X"); !d.IsAdHoc() || d.String() != "X" {
		t.Fatalf("non-registry name should parse as ad-hoc")
	}
}

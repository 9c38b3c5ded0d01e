package logbus

import (
	"fmt"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
)

// QueueName identifies one of the well-known destinations.
// Only registry members are accepted as a forwarder's default destination.
type QueueName string

const (
	QueueLogs    QueueName = "logs"
	QueueAlerts  QueueName = "alerts"
	QueueTraces  QueueName = "traces"
	QueueEvents  QueueName = "events"
	QueueBackups QueueName = "backups"
	QueueReports QueueName = "reports"
)

var registry = []QueueName{
	QueueLogs,
	QueueAlerts,
	QueueTraces,
	QueueEvents,
	QueueBackups,
	QueueReports,
}

// Queues returns the registry in declaration order.
func Queues() []QueueName {
	return append([]QueueName(nil), registry...)
}

// IsKnown reports whether name is a registry member.
func IsKnown(name string) bool {
	for _, q := range registry {
		if string(q) == name {
			return true
		}
	}

	return false
}

// Valid reports whether q is a registry member.
func (q QueueName) Valid() bool { return IsKnown(string(q)) }

func (q QueueName) String() string { return string(q) }

// ParseQueue maps name onto the registry.
func ParseQueue(name string) (QueueName, error) {
	if !IsKnown(name) {
		return "", fmt.Errorf("queue %q: %w", name, berr.ErrInvalidQueue)
	}

	return QueueName(name), nil
}

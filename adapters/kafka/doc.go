// Package kafka provides a Kafka transport for the log forwarder, backed by franz-go.
// A destination becomes a topic; the service name is used as record key.
package kafka

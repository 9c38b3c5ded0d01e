/*
Package nats provides a NATS transport for the log forwarder.
Each destination maps to a subject named after the queue, optionally prefixed.
Declaring a queue only validates the subject; NATS has no queue declaration.
*/
package nats

/*
Package logbus holds the transport-agnostic contracts of the log bus: the closed
queue registry, the destination union used for per-record routing, the wire
schema of a forwarded log entry, and the broker interfaces adapters implement.
*/
package logbus

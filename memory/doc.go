// Package memory wires a forwarder to an in-memory broker for tests and local runs.
package memory

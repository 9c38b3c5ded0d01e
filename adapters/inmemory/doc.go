/*
Package inmemory provides an in-process broker that records declared queues and
published messages. It backs the memory package and most forwarder tests.
*/
package inmemory

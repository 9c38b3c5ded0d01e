/*
Package rabbitmq provides the AMQP 0-9-1 transport for the log forwarder.
Queues are declared durable on the default exchange and messages are published
persistently with the queue name as routing key. The connection is supervised:
when the broker drops it, the session redials with jittered backoff, reopens the
channel and re-declares every queue it has declared so far.
*/
package rabbitmq

package errors

import "errors"

// Error codes for the log bus contracts. Keep stable; used across adapters and the forwarder.
const (
	ErrCodeInvalidQueue        = "logbus.invalid_queue"
	ErrCodeConnectFailed       = "logbus.connect_failed"
	ErrCodeChannelNotReady     = "logbus.channel_not_ready"
	ErrCodeDeclareFailed       = "logbus.declare_failed"
	ErrCodePublishFailed       = "logbus.publish_failed"
	ErrCodeSerializationFailed = "logbus.serialization_failed"
	ErrCodeHandlerClosed       = "logbus.handler_closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrInvalidQueue        = Code(ErrCodeInvalidQueue)
	ErrConnectFailed       = Code(ErrCodeConnectFailed)
	ErrChannelNotReady     = Code(ErrCodeChannelNotReady)
	ErrDeclareFailed       = Code(ErrCodeDeclareFailed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrHandlerClosed       = Code(ErrCodeHandlerClosed)
)

// IsConfiguration reports whether err is a configuration error: an invalid
// destination handed to the default-queue setter or the constructor.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidQueue)
}

// IsConnection reports whether err originated in connection or channel setup.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnectFailed) || errors.Is(err, ErrChannelNotReady)
}

// IsDelivery reports whether err happened while declaring, encoding or publishing.
func IsDelivery(err error) bool {
	return errors.Is(err, ErrDeclareFailed) ||
		errors.Is(err, ErrPublishFailed) ||
		errors.Is(err, ErrSerializationFailed)
}

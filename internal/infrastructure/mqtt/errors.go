package mqtt

import (
	"errors"
	"fmt"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the broker handshake fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost is returned by Yield once the session has dropped.
	// The session is never re-established by this package.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrNoTransport is returned when Connect is called without a connection.
	ErrNoTransport = errors.New("mqtt: no transport connection")
)

// ConnectError is returned when the broker answers CONNECT with a non-zero
// return code (bad credentials, identifier rejected, not authorised).
type ConnectError struct {
	ReturnCode byte
	Err        error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mqtt: broker refused connection (return code %d): %v", e.ReturnCode, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is makes a ConnectError match ErrConnectionFailed.
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectionFailed
}

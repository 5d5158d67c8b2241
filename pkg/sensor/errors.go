package sensor

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNoEndpoint is returned when no endpoint is configured.
	ErrNoEndpoint = errors.New("sensor: endpoint required")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("sensor: client closed")

	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("sensor: already connected")
)

// ConnectionError is a transport-level failure: refused, reset, timed out.
// It is reported as an event; the client never retries on its own.
type ConnectionError struct {
	// Endpoint is the URL being dialed or read from.
	Endpoint string

	// Op is the failing operation: "dial" or "read".
	Op string

	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sensor: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

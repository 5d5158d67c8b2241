package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by DecodeError.
var (
	// ErrEmptyPayload is returned for a zero-length message.
	ErrEmptyPayload = errors.New("protocol: empty payload")

	// ErrNotArray is returned when the top-level value is not an array.
	ErrNotArray = errors.New("protocol: payload is not an array of records")

	// ErrMissingField is returned when a required record field is absent.
	ErrMissingField = errors.New("protocol: missing required field")

	// ErrInvalidValue is returned for non-finite or negative geometry.
	ErrInvalidValue = errors.New("protocol: invalid field value")
)

// DecodeError reports a message that failed structural validation.
// The raw payload is kept for diagnostics.
type DecodeError struct {
	Payload  []byte
	Encoding Encoding
	Err      error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s message (%d bytes): %v", e.Encoding, len(e.Payload), e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Snippet returns at most n bytes of the payload for logging.
func (e *DecodeError) Snippet(n int) string {
	if len(e.Payload) <= n {
		return string(e.Payload)
	}
	return string(e.Payload[:n]) + "..."
}

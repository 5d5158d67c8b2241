// Package hub fans pose and event messages out to dashboard websocket
// clients using the channel-based broadcast pattern.
package hub

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is sent as a text frame
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (CBOR-encoded events)
	BinaryMessage
)

// Message is one frame to broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// EncodeJSON marshals v into a text message.
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}

// EncodeCBOR marshals v into a binary message.
func EncodeCBOR(v any) (Message, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewBinaryMessage(data), nil
}

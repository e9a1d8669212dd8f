// Package hub fans messages out to websocket clients.
//
// One goroutine (Run) owns the client set; clients are registered and removed
// through channels and each client has a single writer goroutine, so no
// connection is ever written concurrently.
package hub

import "encoding/json"

// MessageType indicates the websocket frame type used for a message.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (e.g. JPEG previews).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// JSON encodes v into a text message.
func JSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}

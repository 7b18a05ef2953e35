// Package hub fans websocket messages out to every connected browser.
// One Hub runs per feed: status, notices, orb frames and speaker audio.
package hub

import "github.com/gofiber/websocket/v2"

// Kind is the websocket frame a message goes out as.
type Kind int

const (
	// Text carries JSON status and notices
	Text Kind = iota
	// Binary carries PNG orb frames and PCM audio
	Binary
)

// Message is one broadcast payload.
type Message struct {
	Kind Kind
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Kind: Text, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Kind: Binary, Data: data}
}

func (m Message) opcode() int {
	if m.Kind == Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

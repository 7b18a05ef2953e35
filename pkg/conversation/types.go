// Package conversation holds the turn-taking state machine and the
// transcript of a voice conversation.
package conversation

import (
	"context"
	"time"
)

// Role identifies who produced an utterance.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one transcript entry.
type Utterance struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// State is the conversation phase.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

var stateNames = [...]string{"idle", "listening", "processing", "speaking"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Responder produces the assistant reply for a transcript. The last entry
// is the user utterance being answered.
type Responder interface {
	Respond(ctx context.Context, history []Utterance) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, history []Utterance) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, history []Utterance) (string, error) {
	return f(ctx, history)
}

// Speaker voices assistant replies. An error means the reply will not be
// heard; the machine then goes idle straight away.
type Speaker interface {
	Speak(text string) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(text string) error

func (f SpeakerFunc) Speak(text string) error { return f(text) }

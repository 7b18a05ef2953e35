// Package capture turns live microphone audio into a transcript preview.
//
// A Provider is the platform speech recognizer. The Controller owns the
// listening flag, keeps the recognizer running for as long as the user is
// listening, and hands back the accumulated text when listening stops.
package capture

import (
	"context"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

// DefaultLanguage is the recognition language tag.
const DefaultLanguage = "th-TH"

// Result is one recognition event. Index identifies the result within the
// session; interim results for the same index replace each other until a
// final one arrives.
type Result struct {
	Index   int
	Text    string
	IsFinal bool
}

// Options configures a recognition session.
type Options struct {
	Language       string
	Continuous     bool
	InterimResults bool
	SampleRate     int
}

// DefaultOptions returns continuous Thai recognition with interim results.
func DefaultOptions() Options {
	return Options{
		Language:       DefaultLanguage,
		Continuous:     true,
		InterimResults: true,
		SampleRate:     16000,
	}
}

// Events receives session callbacks. Callbacks may run on any goroutine.
type Events struct {
	OnResult func(Result)
	// OnEnd fires once when the session finishes for any reason.
	OnEnd func()
	// OnError reports a recognizer fault. OnEnd follows.
	OnError func(error)
}

// Provider is a speech recognition engine.
type Provider interface {
	// Available reports whether recognition can be used at all.
	Available() bool

	// Open starts a recognition session.
	Open(ctx context.Context, opts Options, ev Events) (Session, error)

	// Name returns the provider name.
	Name() string
}

// Session is one running recognition.
type Session interface {
	// SendAudio feeds captured audio to the recognizer.
	SendAudio(chunk audioio.AudioChunk) error

	// Stop ends recognition after pending audio is processed.
	Stop() error

	// Abort ends recognition immediately.
	Abort() error
}

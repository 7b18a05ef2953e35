// Package speech voices assistant replies and tracks whether speech is
// currently audible.
package speech

import "errors"

// DefaultLanguage is the language tag replies are spoken in.
const DefaultLanguage = "th-TH"

// Sentinel errors for the speech package.
var (
	// ErrSynthesisUnavailable means the platform cannot speak. Callers still
	// show the reply text.
	ErrSynthesisUnavailable = errors.New("speech: synthesis unavailable")

	// ErrSpeechFailed wraps an error reported while an utterance played.
	ErrSpeechFailed = errors.New("speech: utterance failed")

	// ErrEmptyText rejects blank utterances.
	ErrEmptyText = errors.New("speech: empty text")
)

// Utterance is one request to speak. The provider reports progress through
// the callbacks, from any goroutine. OnEnd and OnError are terminal; at most
// one of them fires, and neither fires after Cancel.
type Utterance struct {
	Text  string
	Lang  string
	Rate  float64
	Pitch float64

	OnStart func()
	OnEnd   func()
	OnError func(error)
}

func (u *Utterance) start() {
	if u.OnStart != nil {
		u.OnStart()
	}
}

func (u *Utterance) end() {
	if u.OnEnd != nil {
		u.OnEnd()
	}
}

func (u *Utterance) fail(err error) {
	if u.OnError != nil {
		u.OnError(err)
	}
}

// Provider is a speech synthesis backend.
type Provider interface {
	// Available reports whether Speak can produce audio.
	Available() bool

	// Speak starts voicing u asynchronously, replacing anything in progress.
	Speak(u *Utterance)

	// Cancel stops speech immediately and drops anything queued.
	Cancel()
}

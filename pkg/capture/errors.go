package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture operations.
var (
	// ErrCaptureUnavailable means speech capture cannot start: no
	// recognizer, microphone denied, or the session failed to open.
	ErrCaptureUnavailable = errors.New("capture: speech capture unavailable")

	// ErrNoAPIKey is returned when a hosted recognizer has no credentials.
	ErrNoAPIKey = errors.New("capture: API key is required")

	// ErrSessionClosed is returned when sending to a finished session.
	ErrSessionClosed = errors.New("capture: session closed")

	// ErrRestartsExhausted means the recognizer kept ending and could not
	// be reopened.
	ErrRestartsExhausted = errors.New("capture: recognizer restart attempts exhausted")
)

// Error describes why capture could not start. It matches
// ErrCaptureUnavailable with errors.Is.
type Error struct {
	Op    string // "recognizer", "microphone", "open"
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("capture: %s unavailable", e.Op)
	}
	return fmt.Sprintf("capture: %s unavailable: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports ErrCaptureUnavailable as a match.
func (e *Error) Is(target error) bool {
	return target == ErrCaptureUnavailable
}

// IsUnavailable reports whether err means capture could not start.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCaptureUnavailable)
}

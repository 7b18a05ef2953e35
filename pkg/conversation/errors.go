package conversation

import "errors"

// Sentinel errors for the conversation package.
var (
	// ErrBusy means a reply is still being generated.
	ErrBusy = errors.New("conversation: reply in progress")

	// ErrEmptyUtterance rejects blank user input.
	ErrEmptyUtterance = errors.New("conversation: empty utterance")

	// ErrNotProcessing is returned by ReceiveResponse outside Processing.
	ErrNotProcessing = errors.New("conversation: no reply pending")

	// ErrResponseGenerationFailed wraps any failure to obtain a reply.
	ErrResponseGenerationFailed = errors.New("conversation: response generation failed")

	// ErrEmptyReply means the responder returned blank text.
	ErrEmptyReply = errors.New("conversation: empty reply")

	// ErrNoSuchUtterance is returned by Replay for a bad index.
	ErrNoSuchUtterance = errors.New("conversation: no assistant utterance at index")

	// ErrNoSpeaker means replies cannot be voiced.
	ErrNoSpeaker = errors.New("conversation: no speaker configured")
)

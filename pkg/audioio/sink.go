package audioio

import (
	"context"
	"io"
)

// Sink is a speaker-like output. speech.Player writes synthesized replies
// to it and uses Flush to learn when playback has ended.
type Sink interface {
	Start(ctx context.Context) error

	// Stop pauses output. Calling it twice is fine.
	Stop() error

	Write(ctx context.Context, chunk AudioChunk) error

	// Flush blocks until everything written so far has been played,
	// Clear is called, or ctx is done.
	Flush(ctx context.Context) error

	// Clear drops queued audio at once and releases pending Flush calls.
	Clear() error

	Config() Config
	Name() string

	io.Closer
}

// SinkStats are output counters, served on /api/audio.
type SinkStats struct {
	ChunksWritten  int64  `json:"chunks_written"`
	SamplesWritten int64  `json:"samples_written"`
	Clears         int64  `json:"clears"`
	Running        bool   `json:"running"`
	Backend        string `json:"backend"`
}

// SinkWithStats is a Sink that counts what it played.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is a run of PCM16 samples, interleaved when Channels > 1.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes encodes the samples as little-endian PCM16, the format sent to
// the recognizer and to browser speakers.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes decodes little-endian PCM16 into the chunk.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.Samples = BytesToSamples(data)
	c.SampleRate = sampleRate
	c.Channels = channels
}

// Duration is how long the chunk takes to play.
func (c *AudioChunk) Duration() time.Duration {
	frames := c.SampleRate * c.Channels
	if frames == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(frames)
}

// Source is a microphone-like input. Microphone owns the only Start and
// Stop calls; consumers read through leases instead.
type Source interface {
	// Start begins capture. Chunks then arrive on Stream.
	Start(ctx context.Context) error

	// Stop ends capture and closes the Stream channel. Calling it twice
	// is fine, and a stopped source may be started again.
	Stop() error

	// Read blocks for the next chunk. It returns io.EOF once stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Stream is the chunk channel of the current run.
	Stream() <-chan AudioChunk

	Config() Config
	Name() string

	// Close stops the source for good.
	io.Closer
}

// SourceStats are input counters, served on /api/audio.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats is a Source that counts what it captured.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

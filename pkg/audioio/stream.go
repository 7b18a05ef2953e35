package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zaf/g711"
)

// Encoding names the wire format of pushed audio.
type Encoding string

const (
	// EncodingPCM16 is little-endian signed 16-bit PCM.
	EncodingPCM16 Encoding = "pcm16"
	// EncodingMulaw is G.711 μ-law, one byte per sample.
	EncodingMulaw Encoding = "mulaw"
)

// ErrUnknownEncoding is returned by Decode for unsupported formats.
var ErrUnknownEncoding = errors.New("audioio: unknown encoding")

// ParseEncoding maps a query value to an Encoding. Empty means PCM16.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", EncodingPCM16:
		return EncodingPCM16, nil
	case EncodingMulaw, "ulaw":
		return EncodingMulaw, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

// Decode converts wire bytes into PCM16 samples.
func Decode(data []byte, enc Encoding) ([]int16, error) {
	switch enc {
	case EncodingPCM16, "":
		return BytesToSamples(data), nil
	case EncodingMulaw:
		return BytesToSamples(g711.DecodeUlaw(data)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

// Encode converts PCM16 samples into the given wire format.
func Encode(samples []int16, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingPCM16, "":
		return SamplesToBytes(samples), nil
	case EncodingMulaw:
		return g711.EncodeUlaw(SamplesToBytes(samples)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

// StreamSource is a Source fed from outside, typically a browser
// microphone streaming over a websocket. Audio pushed while the source is
// stopped is discarded.
type StreamSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk

	chunks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

// NewStreamSource creates a stopped stream source.
func NewStreamSource(cfg Config, logger *slog.Logger) *StreamSource {
	if logger == nil {
		logger = slog.Default()
	}
	ch := make(chan AudioChunk)
	close(ch)
	return &StreamSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.stream_source"),
		streamCh: ch,
	}
}

// Push decodes data recorded at sampleRate and delivers it, resampled to
// the source rate. A sampleRate of 0 means the source rate.
func (s *StreamSource) Push(data []byte, enc Encoding, sampleRate int) error {
	pcm, err := Decode(data, enc)
	if err != nil {
		return err
	}
	if sampleRate <= 0 {
		sampleRate = s.cfg.SampleRate
	}
	chunk := AudioChunk{
		Samples:    Resample(pcm, sampleRate, s.cfg.SampleRate),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if !s.running {
		return nil
	}
	select {
	case s.streamCh <- chunk:
		s.chunks.Add(1)
		s.samples.Add(int64(len(chunk.Samples)))
	default:
		s.overruns.Add(1)
	}
	return nil
}

// Start opens the stream.
func (s *StreamSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	s.running = true
	s.streamCh = make(chan AudioChunk, 64)
	s.logger.Debug("stream source started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop closes the stream channel. Start may be called again.
func (s *StreamSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.streamCh)
	s.logger.Debug("stream source stopped")
	return nil
}

// Read reads the next chunk.
func (s *StreamSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := s.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the current chunk channel.
func (s *StreamSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *StreamSource) Config() Config { return s.cfg }

// Name returns "stream".
func (s *StreamSource) Name() string { return "stream" }

// Close stops the source for good.
func (s *StreamSource) Close() error {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Stats returns source statistics.
func (s *StreamSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunks.Load(),
		SamplesRead: s.samples.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "stream",
	}
}

var _ SourceWithStats = (*StreamSource)(nil)

// StreamSink forwards audio to a remote player and tracks when that
// player will have finished, so Flush behaves like local playback.
type StreamSink struct {
	cfg    Config
	logger *slog.Logger

	out     func(AudioChunk)
	onClear func()

	mu          sync.Mutex
	running     bool
	closed      bool
	playedUntil time.Time
	cleared     chan struct{}

	chunks  atomic.Int64
	samples atomic.Int64
	clears  atomic.Int64
}

// StreamSinkOption configures a StreamSink.
type StreamSinkOption func(*StreamSink)

// WithOutput sets the function that receives every written chunk.
func WithOutput(fn func(AudioChunk)) StreamSinkOption {
	return func(s *StreamSink) { s.out = fn }
}

// WithClearHook sets a function called when playback is interrupted, so
// the remote player can drop what it has queued.
func WithClearHook(fn func()) StreamSinkOption {
	return func(s *StreamSink) { s.onClear = fn }
}

// NewStreamSink creates a stream sink.
func NewStreamSink(cfg Config, logger *slog.Logger, opts ...StreamSinkOption) *StreamSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StreamSink{
		cfg:     cfg,
		logger:  logger.With("component", "audioio.stream_sink"),
		cleared: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins accepting audio.
func (s *StreamSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop halts audio acceptance.
func (s *StreamSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Write forwards the chunk and extends the playback horizon by its length.
func (s *StreamSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	now := time.Now()
	if s.playedUntil.Before(now) {
		s.playedUntil = now
	}
	s.playedUntil = s.playedUntil.Add(chunk.Duration())
	out := s.out
	s.mu.Unlock()

	s.chunks.Add(1)
	s.samples.Add(int64(len(chunk.Samples)))
	if out != nil {
		out(chunk)
	}
	return nil
}

// Flush waits until the remote player should have drained its queue.
func (s *StreamSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Until(s.playedUntil)
	cleared := s.cleared
	s.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-cleared:
		return nil
	case <-t.C:
		return nil
	}
}

// Clear interrupts playback.
func (s *StreamSink) Clear() error {
	s.mu.Lock()
	s.playedUntil = time.Time{}
	close(s.cleared)
	s.cleared = make(chan struct{})
	hook := s.onClear
	s.mu.Unlock()

	s.clears.Add(1)
	if hook != nil {
		hook()
	}
	return nil
}

// Config returns the audio configuration.
func (s *StreamSink) Config() Config { return s.cfg }

// Name returns "stream".
func (s *StreamSink) Name() string { return "stream" }

// Close stops the sink for good.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.running = false
	return nil
}

// Stats returns sink statistics.
func (s *StreamSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunks.Load(),
		SamplesWritten: s.samples.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "stream",
	}
}

var _ SinkWithStats = (*StreamSink)(nil)

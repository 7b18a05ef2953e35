// Package tts turns reply text into PCM audio.
//
// Backends stream raw PCM so playback can start on the first chunk. The
// speech package plays these streams through an audioio.Sink.
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("your-voice-id"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, tts.Request{Text: "สวัสดีครับ", Language: "th-TH"})
package tts

import (
	"context"
	"strings"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// Stream converts text to audio with streaming output for lowest latency.
	Stream(ctx context.Context, req Request) (AudioStream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request describes one utterance to synthesize.
type Request struct {
	Text string

	// Language is a BCP-47 tag such as "th-TH". Empty lets the backend
	// detect it.
	Language string

	// Speed is the playback rate, 1.0 is normal. Zero means default.
	Speed float64
}

// LanguageCode returns the ISO 639-1 part of the request language.
func (r Request) LanguageCode() string {
	lang, _, _ := strings.Cut(r.Language, "-")
	return strings.ToLower(lang)
}

// AudioStream represents a streaming audio response.
// Callers should read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil when the stream is complete.
	Read() ([]byte, error)

	Close() error

	Format() AudioFormat
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a raw audio output format. Values follow the ElevenLabs
// output_format strings.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
	EncodingULaw  Encoding = "ulaw_8000" // G.711 μ-law
)

// FormatFor returns mono 16-bit format metadata for enc.
func FormatFor(enc Encoding) AudioFormat {
	f := AudioFormat{Encoding: enc, SampleRate: SampleRateFromEncoding(enc), Channels: 1, BitDepth: 16}
	if enc == EncodingULaw {
		f.BitDepth = 8
	}
	return f
}

// BytesPerSecond returns the data rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return f.SampleRate * ch * max(f.BitDepth/8, 1)
}

// DurationOf estimates how long n bytes of audio in this format play for.
func (f AudioFormat) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// VoiceSettings controls voice characteristics for providers that support it.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	Style        float64
	SpeakerBoost bool
}

// DefaultVoiceSettings returns defaults tuned for short assistant replies.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44:
		return 44100
	case EncodingULaw:
		return 8000
	default:
		return 24000
	}
}

// bufferStream serves an in-memory buffer as an AudioStream.
type bufferStream struct {
	data   []byte
	format AudioFormat
	chunk  int
	pos    int
	closed bool
}

func newBufferStream(data []byte, format AudioFormat) *bufferStream {
	// ~100ms per read
	chunk := format.BytesPerSecond() / 10
	if chunk <= 0 {
		chunk = 4096
	}
	return &bufferStream{data: data, format: format, chunk: chunk}
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos >= len(s.data) {
		return nil, nil
	}
	end := min(s.pos+s.chunk, len(s.data))
	out := s.data[s.pos:end]
	s.pos = end
	return out, nil
}

func (s *bufferStream) Close() error {
	s.closed = true
	return nil
}

func (s *bufferStream) Format() AudioFormat { return s.format }

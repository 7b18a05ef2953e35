package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
	"github.com/teslashibe/go-ecotrack/pkg/tts"
)

// Player is a Provider that streams tts audio into an audio sink. Start is
// reported when the first chunk reaches the sink and end once the sink has
// played everything.
type Player struct {
	tts    tts.Provider
	sink   audioio.Sink
	logger *slog.Logger

	startOnce sync.Once
	startErr  error

	mu  sync.Mutex
	cur *playback
}

type playback struct {
	cancel context.CancelFunc
}

// NewPlayer creates a player.
func NewPlayer(provider tts.Provider, sink audioio.Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		tts:    provider,
		sink:   sink,
		logger: logger.With("component", "speech.player"),
	}
}

// Available reports whether both a tts backend and a sink are configured
// and the sink could be started.
func (p *Player) Available() bool {
	if p.tts == nil || p.sink == nil {
		return false
	}
	return p.ensureStarted() == nil
}

func (p *Player) ensureStarted() error {
	p.startOnce.Do(func() {
		p.startErr = p.sink.Start(context.Background())
		if p.startErr != nil {
			p.logger.Warn("sink start failed", "sink", p.sink.Name(), "error", p.startErr)
		}
	})
	return p.startErr
}

// Speak replaces any utterance in progress with u.
func (p *Player) Speak(u *Utterance) {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{cancel: cancel}

	p.mu.Lock()
	prev := p.cur
	p.cur = pb
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
		p.sink.Clear()
	}
	go p.play(ctx, pb, u)
}

// Cancel stops playback and discards queued audio.
func (p *Player) Cancel() {
	p.mu.Lock()
	pb := p.cur
	p.cur = nil
	p.mu.Unlock()

	if pb == nil {
		return
	}
	pb.cancel()
	if err := p.sink.Clear(); err != nil {
		p.logger.Debug("sink clear failed", "error", err)
	}
}

func (p *Player) play(ctx context.Context, pb *playback, u *Utterance) {
	defer func() {
		p.mu.Lock()
		if p.cur == pb {
			p.cur = nil
		}
		p.mu.Unlock()
		pb.cancel()
	}()

	if err := p.ensureStarted(); err != nil {
		p.report(ctx, u, err)
		return
	}

	stream, err := p.tts.Stream(ctx, tts.Request{Text: u.Text, Language: u.Lang, Speed: u.Rate})
	if err != nil {
		p.report(ctx, u, err)
		return
	}
	defer stream.Close()
	// Unblocks a pending Read when the utterance is cancelled.
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	format := stream.Format()
	rate := p.sink.Config().SampleRate
	dec := decoder{enc: format.Encoding}
	started := false

	for {
		data, err := stream.Read()
		if err != nil {
			p.report(ctx, u, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if data == nil {
			break
		}

		samples := audioio.Resample(dec.decode(data), format.SampleRate, rate)
		if len(samples) == 0 {
			continue
		}
		if err := p.sink.Write(ctx, audioio.AudioChunk{Samples: samples, SampleRate: rate, Channels: 1}); err != nil {
			p.report(ctx, u, err)
			return
		}
		if !started {
			started = true
			u.start()
		}
	}

	if !started {
		u.start()
	}
	if err := p.sink.Flush(ctx); err != nil {
		p.report(ctx, u, err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	u.end()
}

// report fails u unless the utterance was cancelled.
func (p *Player) report(ctx context.Context, u *Utterance, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	p.logger.Warn("playback failed", "error", err)
	u.fail(err)
}

// decoder turns tts byte chunks into samples, carrying an odd trailing
// byte of PCM16 over to the next chunk.
type decoder struct {
	enc   tts.Encoding
	carry []byte
}

func (d *decoder) decode(data []byte) []int16 {
	if d.enc == tts.EncodingULaw {
		samples, _ := audioio.Decode(data, audioio.EncodingMulaw)
		return samples
	}
	if len(d.carry) > 0 {
		data = append(d.carry, data...)
		d.carry = nil
	}
	if len(data)%2 == 1 {
		d.carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	return audioio.BytesToSamples(data)
}

var _ Provider = (*Player)(nil)

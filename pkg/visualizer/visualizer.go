// Package visualizer renders the audio-reactive orb shown during a voice
// conversation.
package visualizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

// ErrStreamAcquisitionFailed means the microphone could not be opened for
// the visualizer. Rendering continues without live data.
var ErrStreamAcquisitionFailed = errors.New("visualizer: microphone stream acquisition failed")

// Default viewport used until Resize is called.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// Mode selects what a frame shows.
type Mode int

const (
	ModeIdle Mode = iota
	ModeListening
	ModeSpeaking
)

var modeNames = [...]string{"idle", "listening", "speaking"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// ParseMode maps a name to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if s == name {
			return Mode(i), nil
		}
	}
	return ModeIdle, fmt.Errorf("visualizer: unknown mode %q", s)
}

// ModeFor derives the mode from the pipeline flags.
func ModeFor(listening, speaking bool) Mode {
	switch {
	case listening:
		return ModeListening
	case speaking:
		return ModeSpeaking
	default:
		return ModeIdle
	}
}

// Frame is one rendered image. Image is reused by the next frame, so
// sinks must copy or encode it before returning.
type Frame struct {
	Image image.Image
	Mode  Mode
	Seq   uint64
	At    time.Time
}

// FrameSink receives rendered frames.
type FrameSink interface {
	Frame(f Frame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(Frame)

func (f FrameSinkFunc) Frame(fr Frame) { f(fr) }

// Visualizer draws a frame on every display refresh while started.
type Visualizer struct {
	sched    FrameScheduler
	mic      *audioio.Microphone
	sink     FrameSink
	analyser *Analyser
	rng      *rand.Rand
	onError  func(error)
	logger   *slog.Logger

	mu        sync.Mutex
	renderer  *Renderer
	running   bool
	handle    Handle
	listening bool
	speaking  bool
	lease     *audioio.Lease
	data      []byte
	seq       uint64
}

// Option configures a Visualizer.
type Option func(*Visualizer)

// WithScheduler sets the frame scheduler.
func WithScheduler(s FrameScheduler) Option {
	return func(v *Visualizer) { v.sched = s }
}

// WithMicrophone sets the shared microphone BindMicrophone leases from.
func WithMicrophone(mic *audioio.Microphone) Option {
	return func(v *Visualizer) { v.mic = mic }
}

// WithFrameSink sets where frames go.
func WithFrameSink(sink FrameSink) Option {
	return func(v *Visualizer) { v.sink = sink }
}

// WithViewport sets the initial viewport.
func WithViewport(w, h int) Option {
	return func(v *Visualizer) { v.renderer = NewRenderer(w, h) }
}

// WithAnalyser replaces the default analyser.
func WithAnalyser(a *Analyser) Option {
	return func(v *Visualizer) { v.analyser = a }
}

// WithRand sets the source of the speaking animation.
func WithRand(r *rand.Rand) Option {
	return func(v *Visualizer) { v.rng = r }
}

// OnError registers a callback for errors that do not stop rendering.
func OnError(fn func(error)) Option {
	return func(v *Visualizer) { v.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Visualizer) { v.logger = l }
}

// New creates a stopped visualizer.
func New(opts ...Option) *Visualizer {
	v := &Visualizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	if v.sched == nil {
		v.sched = NewTickerScheduler(DefaultFrameRate)
	}
	if v.renderer == nil {
		v.renderer = NewRenderer(DefaultViewportWidth, DefaultViewportHeight)
	}
	if v.analyser == nil {
		v.analyser = NewAnalyser()
	}
	if v.rng == nil {
		v.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	v.data = make([]byte, v.analyser.FrequencyBinCount())
	v.logger = v.logger.With("component", "visualizer")
	return v
}

// Start begins drawing. It is a no-op when already running.
func (v *Visualizer) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return
	}
	v.running = true
	v.handle = v.sched.RequestFrame(v.draw)
}

// Stop cancels the pending frame and releases the microphone.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	if v.running {
		v.running = false
		v.sched.CancelFrame(v.handle)
		v.handle = 0
	}
	v.mu.Unlock()
	v.UnbindMicrophone()
}

// Running reports whether frames are being drawn.
func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// SetFlags updates the listening and speaking flags frames are drawn from.
func (v *Visualizer) SetFlags(listening, speaking bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listening, v.speaking = listening, speaking
}

// Mode returns what the next frame will show.
func (v *Visualizer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ModeFor(v.listening, v.speaking)
}

// Resize recomputes the canvas for a new viewport.
func (v *Visualizer) Resize(w, h int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renderer.Resize(w, h)
	v.logger.Debug("resized", "size", v.renderer.Size())
}

// Size returns the canvas side in pixels.
func (v *Visualizer) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renderer.Size()
}

// Bound reports whether a microphone lease is held.
func (v *Visualizer) Bound() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lease != nil
}

// BindMicrophone leases the shared microphone and feeds it to the
// analyser. On failure the error matches ErrStreamAcquisitionFailed and
// frames keep rendering the static orb.
func (v *Visualizer) BindMicrophone(ctx context.Context) error {
	v.mu.Lock()
	if v.lease != nil {
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	if v.mic == nil {
		return v.fail(fmt.Errorf("%w: no microphone", ErrStreamAcquisitionFailed))
	}
	lease, err := v.mic.Acquire(ctx)
	if err != nil {
		return v.fail(fmt.Errorf("%w: %w", ErrStreamAcquisitionFailed, err))
	}

	v.mu.Lock()
	if v.lease != nil {
		v.mu.Unlock()
		lease.Release()
		return nil
	}
	v.lease = lease
	v.mu.Unlock()

	v.analyser.Reset()
	go v.pump(lease)
	return nil
}

// UnbindMicrophone releases the microphone lease, if any.
func (v *Visualizer) UnbindMicrophone() {
	v.mu.Lock()
	lease := v.lease
	v.lease = nil
	v.mu.Unlock()
	if lease != nil {
		lease.Release()
		v.analyser.Reset()
	}
}

func (v *Visualizer) pump(lease *audioio.Lease) {
	for chunk := range lease.Chunks() {
		samples := chunk.Samples
		if chunk.Channels == 2 {
			samples = audioio.StereoToMono(samples)
		}
		v.analyser.Write(samples)
	}
}

func (v *Visualizer) fail(err error) error {
	v.logger.Warn("microphone unavailable for visualization", "error", err)
	if v.onError != nil {
		v.onError(err)
	}
	return err
}

func (v *Visualizer) draw(t time.Time) {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return
	}
	mode := ModeFor(v.listening, v.speaking)
	img := v.renderer.Render(v.dataLocked(mode, v.lease != nil))
	v.seq++
	frame := Frame{Image: img, Mode: mode, Seq: v.seq, At: t}
	v.handle = v.sched.RequestFrame(v.draw)
	sink := v.sink
	v.mu.Unlock()

	if sink != nil {
		sink.Frame(frame)
	}
}

// Snapshot renders a single frame for mode without the scheduler, on its
// own canvas so frames already handed out stay intact. Listening frames
// use whatever the analyser currently holds.
func (v *Visualizer) Snapshot(mode Mode) Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := &Renderer{}
	r.setSize(v.renderer.Size())
	v.seq++
	return Frame{Image: r.Render(v.dataLocked(mode, true)), Mode: mode, Seq: v.seq, At: time.Now()}
}

// dataLocked returns the magnitudes to draw, or nil for the static orb.
// Listening without a live stream draws the static orb.
func (v *Visualizer) dataLocked(mode Mode, live bool) []byte {
	switch {
	case mode == ModeListening && live:
		return v.analyser.ByteFrequencyData(v.data)
	case mode == ModeSpeaking:
		for i := range v.data {
			v.data[i] = byte(v.rng.Float64()*100 + 50)
		}
		return v.data
	default:
		return nil
	}
}

// EncodePNG writes the most recent frame as PNG.
func (v *Visualizer) EncodePNG(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renderer.EncodePNG(w)
}

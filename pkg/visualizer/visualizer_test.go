package visualizer

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *frameRecorder) Frame(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *frameRecorder) last() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func testMic(opts ...audioio.MockSourceOption) (*audioio.Microphone, *audioio.MockSource) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 10 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil, opts...)
	return audioio.NewMicrophone(audioio.Shared(src), nil), src
}

func newTestVisualizer(opts ...Option) (*Visualizer, *ManualScheduler, *frameRecorder) {
	sched := NewManualScheduler()
	rec := &frameRecorder{}
	base := []Option{
		WithScheduler(sched),
		WithFrameSink(rec),
		WithViewport(500, 500),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}
	return New(append(base, opts...)...), sched, rec
}

func TestModeFor(t *testing.T) {
	tests := []struct {
		listening, speaking bool
		want                Mode
	}{
		{false, false, ModeIdle},
		{true, false, ModeListening},
		{false, true, ModeSpeaking},
		{true, true, ModeListening},
	}
	for _, tt := range tests {
		if got := ModeFor(tt.listening, tt.speaking); got != tt.want {
			t.Errorf("ModeFor(%v, %v) = %v, want %v", tt.listening, tt.speaking, got, tt.want)
		}
	}
	if m, err := ParseMode("speaking"); err != nil || m != ModeSpeaking {
		t.Errorf("ParseMode = %v, %v", m, err)
	}
	if _, err := ParseMode("dancing"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}

func TestManualScheduler(t *testing.T) {
	s := NewManualScheduler()
	var ran []int
	s.RequestFrame(func(time.Time) { ran = append(ran, 1) })
	h := s.RequestFrame(func(time.Time) { ran = append(ran, 2) })
	s.RequestFrame(func(time.Time) {
		ran = append(ran, 3)
		s.RequestFrame(func(time.Time) { ran = append(ran, 4) })
	})
	s.CancelFrame(h)

	if n := s.Step(time.Now()); n != 2 {
		t.Errorf("Step ran %d, want 2", n)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 3 {
		t.Errorf("ran = %v", ran)
	}
	if s.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending())
	}
	s.Step(time.Now())
	if len(ran) != 3 || ran[2] != 4 {
		t.Errorf("ran = %v", ran)
	}
}

func TestTickerScheduler(t *testing.T) {
	s := NewTickerScheduler(200)
	defer s.Close()

	fired := make(chan time.Time, 1)
	s.RequestFrame(func(at time.Time) { fired <- at })
	cancelled := s.RequestFrame(func(time.Time) { t.Error("cancelled frame ran") })
	s.CancelFrame(cancelled)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("frame never ran")
	}
	s.Close()
	s.Close()

	idle := NewTickerScheduler(0)
	if err := idle.Close(); err != nil {
		t.Errorf("Close before first request = %v", err)
	}
}

func TestVisualizer_StartStop(t *testing.T) {
	v, sched, rec := newTestVisualizer()

	v.Start()
	v.Start()
	if sched.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", sched.Pending())
	}
	for range 3 {
		sched.Step(time.Now())
	}
	if rec.count() != 3 || rec.last().Seq != 3 {
		t.Errorf("frames = %d, last seq %d", rec.count(), rec.last().Seq)
	}

	v.Stop()
	if sched.Pending() != 0 {
		t.Errorf("Stop left %d pending frames", sched.Pending())
	}
	sched.Step(time.Now())
	if rec.count() != 3 {
		t.Error("frame drawn after Stop")
	}
}

func TestVisualizer_NoSourceNeverPanics(t *testing.T) {
	v, sched, rec := newTestVisualizer()
	v.Start()
	defer v.Stop()

	for _, flags := range [][2]bool{{false, false}, {true, false}, {false, true}} {
		v.SetFlags(flags[0], flags[1])
		sched.Step(time.Now())
	}
	if rec.count() != 3 {
		t.Fatalf("frames = %d", rec.count())
	}
	if rec.frames[1].Mode != ModeListening {
		t.Errorf("mode = %v", rec.frames[1].Mode)
	}
}

func TestVisualizer_BindMicrophone(t *testing.T) {
	mic, src := testMic(audioio.WithManualFeed())
	v, sched, _ := newTestVisualizer(WithMicrophone(mic))

	if err := v.BindMicrophone(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := v.BindMicrophone(context.Background()); err != nil {
		t.Fatal(err)
	}
	if mic.Refs() != 1 || src.Starts() != 1 {
		t.Errorf("refs=%d starts=%d, want one acquisition", mic.Refs(), src.Starts())
	}

	v.SetFlags(true, false)
	v.Start()
	src.Emit(audioio.AudioChunk{Samples: tone(DefaultFFTSize, 16, DefaultFFTSize, 0.5), SampleRate: 16000, Channels: 1})

	deadline := time.Now().Add(2 * time.Second)
	for {
		data := v.analyser.ByteFrequencyData(nil)
		if data[16] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("microphone audio never reached the analyser")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sched.Step(time.Now())

	v.Stop()
	if v.Bound() || mic.Refs() != 0 || src.Running() {
		t.Errorf("Stop kept the microphone: bound=%v refs=%d running=%v", v.Bound(), mic.Refs(), src.Running())
	}
}

func TestVisualizer_BindFailure(t *testing.T) {
	denied := errors.New("permission denied")
	mic, _ := testMic(audioio.WithStartError(denied))

	var notified []error
	v, sched, rec := newTestVisualizer(WithMicrophone(mic), OnError(func(err error) { notified = append(notified, err) }))

	err := v.BindMicrophone(context.Background())
	if !errors.Is(err, ErrStreamAcquisitionFailed) || !errors.Is(err, denied) {
		t.Fatalf("BindMicrophone = %v", err)
	}
	if len(notified) != 1 {
		t.Errorf("notified %d times, want 1", len(notified))
	}

	// Listening without a stream falls back to the static orb.
	v.SetFlags(true, false)
	v.Start()
	sched.Step(time.Now())
	img := rec.last().Image
	c := v.Size() / 2
	edge := c + int(NewRenderer(500, 500).Radius()) + 5
	if alphaAt(img, edge, c) != 0 {
		t.Error("spikes drawn without a stream")
	}

	noMic, _, _ := newTestVisualizer()
	if err := noMic.BindMicrophone(context.Background()); !errors.Is(err, ErrStreamAcquisitionFailed) {
		t.Errorf("BindMicrophone without mic = %v", err)
	}
}

func TestVisualizer_SpeakingUsesRandomData(t *testing.T) {
	v, _, _ := newTestVisualizer()
	v.Snapshot(ModeSpeaking)
	for i, b := range v.data {
		if b < 50 || b >= 150 {
			t.Fatalf("speaking value %d at %d outside [50,150)", b, i)
		}
	}

	idle := v.Snapshot(ModeIdle)
	if idle.Mode != ModeIdle || idle.Image.Bounds().Dx() != 200 {
		t.Errorf("idle frame = %+v", idle)
	}
}

func TestVisualizer_Resize(t *testing.T) {
	v, sched, rec := newTestVisualizer()
	v.Start()
	defer v.Stop()

	sched.Step(time.Now())
	v.Resize(1920, 1080)
	sched.Step(time.Now())
	if v.Size() != 432 {
		t.Errorf("Size = %d, want 432", v.Size())
	}
	if dx := rec.last().Image.Bounds().Dx(); dx != 432 {
		t.Errorf("frame width = %d, want 432", dx)
	}
}

package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 10 * time.Millisecond
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if src.Starts() != 1 {
		t.Errorf("Starts = %d, want 1", src.Starts())
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if src.Running() {
		t.Error("source still running after Stop")
	}
}

func TestMockSource_ReadSine(t *testing.T) {
	cfg := testConfig()
	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(chunk.Samples) != cfg.BufferSize() {
		t.Errorf("got %d samples, want %d", len(chunk.Samples), cfg.BufferSize())
	}
	if RMS(chunk.Samples) == 0 {
		t.Error("sine chunk is silent")
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil, WithManualFeed())
	src.Start(context.Background())
	src.Stop()

	if _, err := src.Read(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Read after Stop = %v, want io.EOF", err)
	}
}

func TestMockSource_ManualFeed(t *testing.T) {
	src := NewMockSource(testConfig(), nil, WithManualFeed())
	defer src.Close()

	if src.Emit(AudioChunk{Samples: []int16{1}}) {
		t.Error("Emit before Start should be dropped")
	}
	src.Start(context.Background())
	if !src.Emit(AudioChunk{Samples: []int16{1, 2}}) {
		t.Fatal("Emit after Start dropped")
	}
	chunk := <-src.Stream()
	if len(chunk.Samples) != 2 {
		t.Errorf("got %d samples, want 2", len(chunk.Samples))
	}
	if got := src.Stats().ChunksRead; got != 1 {
		t.Errorf("ChunksRead = %d, want 1", got)
	}
}

func TestMockSource_StartError(t *testing.T) {
	boom := errors.New("permission denied")
	src := NewMockSource(testConfig(), nil, WithStartError(boom))
	if err := src.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Start = %v, want %v", err, boom)
	}
}

func TestMockSource_Closed(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	src.Close()
	if err := src.Start(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestMockSink_WriteFlushClear(t *testing.T) {
	sink := NewMockSink(testConfig(), nil)
	ctx := context.Background()

	if err := sink.Write(ctx, AudioChunk{Samples: []int16{1}}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write before Start = %v, want io.ErrClosedPipe", err)
	}

	sink.Start(ctx)
	for i := 0; i < 3; i++ {
		if err := sink.Write(ctx, AudioChunk{Samples: make([]int16, 160), SampleRate: 16000, Channels: 1}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(sink.Written()) != 3 {
		t.Errorf("Written = %d chunks, want 3", len(sink.Written()))
	}

	sink.FlushDelay = time.Hour
	done := make(chan error, 1)
	go func() { done <- sink.Flush(ctx) }()
	time.Sleep(10 * time.Millisecond)
	sink.Clear()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Flush after Clear = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Clear did not release Flush")
	}

	stats := sink.Stats()
	if stats.ChunksWritten != 3 || stats.Clears != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestAudioChunk(t *testing.T) {
	c := AudioChunk{Samples: []int16{0x0102, -1}, SampleRate: 16000, Channels: 1}
	b := c.Bytes()
	want := []byte{0x02, 0x01, 0xff, 0xff}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("Bytes() = %v, want %v", b, want)
		}
	}

	var d AudioChunk
	d.FromBytes(b, 16000, 1)
	if d.Samples[0] != 0x0102 || d.Samples[1] != -1 {
		t.Errorf("FromBytes samples = %v", d.Samples)
	}

	c.Samples = make([]int16, 1600)
	if got := c.Duration(); got != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", got)
	}
	if got := (&AudioChunk{}).Duration(); got != 0 {
		t.Errorf("empty Duration = %v", got)
	}
}

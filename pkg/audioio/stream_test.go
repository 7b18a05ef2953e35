package audioio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"", EncodingPCM16, false},
		{"pcm16", EncodingPCM16, false},
		{"mulaw", EncodingMulaw, false},
		{"ulaw", EncodingMulaw, false},
		{"opus", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEncoding(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMulawRoundTrip(t *testing.T) {
	in := []int16{0, 1000, -1000, 8000, -8000, 30000}
	enc, err := Encode(in, EncodingMulaw)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) != len(in) {
		t.Fatalf("encoded %d bytes, want %d", len(enc), len(in))
	}
	out, err := Decode(enc, EncodingMulaw)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		diff := int(in[i]) - int(out[i])
		if diff < 0 {
			diff = -diff
		}
		// μ-law is lossy; error grows with magnitude.
		if tol := 64 + abs(int(in[i]))/16; diff > tol {
			t.Errorf("sample %d: %d -> %d", i, in[i], out[i])
		}
	}

	if _, err := Decode([]byte{1}, "opus"); !errors.Is(err, ErrUnknownEncoding) {
		t.Errorf("Decode unknown = %v", err)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestStreamSource_Push(t *testing.T) {
	cfg := DefaultConfig()
	src := NewStreamSource(cfg, nil)

	// Pushed audio before Start is discarded.
	if err := src.Push(make([]byte, 320), EncodingPCM16, 0); err != nil {
		t.Fatalf("Push before Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src.Start(ctx)

	if err := src.Push(make([]byte, 160), EncodingMulaw, 8000); err != nil {
		t.Fatalf("Push: %v", err)
	}
	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if chunk.SampleRate != 16000 || len(chunk.Samples) != 320 {
		t.Errorf("chunk rate=%d samples=%d, want 16000/320", chunk.SampleRate, len(chunk.Samples))
	}

	src.Close()
	if err := src.Push(make([]byte, 2), EncodingPCM16, 0); err == nil {
		t.Error("Push after Close should fail")
	}
}

func TestStreamSink_FlushTracksPlayback(t *testing.T) {
	cfg := DefaultConfig()
	var got int
	var cleared int
	sink := NewStreamSink(cfg, nil,
		WithOutput(func(c AudioChunk) { got += len(c.Samples) }),
		WithClearHook(func() { cleared++ }),
	)
	ctx := context.Background()
	sink.Start(ctx)

	// 30ms of audio.
	sink.Write(ctx, AudioChunk{Samples: make([]int16, 480), SampleRate: 16000, Channels: 1})
	start := time.Now()
	if err := sink.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Flush returned after %v, want about 30ms", elapsed)
	}
	if got != 480 {
		t.Errorf("output saw %d samples", got)
	}

	// 10s of audio, interrupted.
	sink.Write(ctx, AudioChunk{Samples: make([]int16, 160000), SampleRate: 16000, Channels: 1})
	done := make(chan struct{})
	go func() {
		sink.Flush(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	sink.Clear()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Clear did not end Flush")
	}
	if cleared != 1 {
		t.Errorf("clear hook ran %d times", cleared)
	}
}

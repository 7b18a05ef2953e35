package tts_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/teslashibe/go-ecotrack/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, tts.Request{Text: "Hello world"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) != 7040 {
			t.Errorf("expected 7040 bytes, got %d", len(result.Audio))
		}
		if result.Duration != 220*time.Millisecond {
			t.Errorf("expected 220ms, got %v", result.Duration)
		}
		if result.Format.SampleRate != 16000 {
			t.Errorf("expected 16000 sample rate, got %d", result.Format.SampleRate)
		}
	})

	t.Run("Stream yields the whole buffer", func(t *testing.T) {
		stream, err := mock.Stream(ctx, tts.Request{Text: "Test stream"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer stream.Close()

		var total, reads int
		for {
			chunk, err := stream.Read()
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			if chunk == nil {
				break
			}
			total += len(chunk)
			reads++
		}
		if total != 7040 || reads != 3 {
			t.Errorf("read %d bytes in %d reads, want 7040 in 3", total, reads)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		mock.Health(ctx)
		if got := len(mock.Calls()); got != 3 {
			t.Errorf("expected 3 calls, got %d", got)
		}
		if mock.CallCount("Stream") != 1 {
			t.Errorf("expected 1 Stream call, got %d", mock.CallCount("Stream"))
		}
		if last := mock.LastCall(); last == nil || last.Method != "Health" {
			t.Errorf("LastCall = %+v", last)
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, tts.Request{Text: "Hello"}); !errors.Is(err, testErr) {
		t.Errorf("Synthesize = %v, want %v", err, testErr)
	}
	if _, err := mock.Stream(ctx, tts.Request{Text: "Hello"}); !errors.Is(err, testErr) {
		t.Errorf("Stream = %v, want %v", err, testErr)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Health = %v, want %v", err, testErr)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	start := time.Now()
	if _, err := mock.Synthesize(context.Background(), tts.Request{Text: "Hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms latency, got %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := mock.Synthesize(ctx, tts.Request{Text: "Hello"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestRequestLanguageCode(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"th-TH", "th"},
		{"en", "en"},
		{"EN-us", "en"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (tts.Request{Language: tt.lang}).LanguageCode(); got != tt.want {
			t.Errorf("LanguageCode(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		enc      tts.Encoding
		rate     int
		bps      int
		duration time.Duration
	}{
		{tts.EncodingPCM16, 16000, 32000, 500 * time.Millisecond},
		{tts.EncodingPCM24, 24000, 48000, 333333333},
		{tts.EncodingULaw, 8000, 8000, 2 * time.Second},
		{tts.Encoding("unknown"), 24000, 48000, 333333333},
	}
	for _, tt := range tests {
		t.Run(string(tt.enc), func(t *testing.T) {
			f := tts.FormatFor(tt.enc)
			if f.SampleRate != tt.rate {
				t.Errorf("SampleRate = %d, want %d", f.SampleRate, tt.rate)
			}
			if f.BytesPerSecond() != tt.bps {
				t.Errorf("BytesPerSecond = %d, want %d", f.BytesPerSecond(), tt.bps)
			}
			if got := f.DurationOf(16000); got != tt.duration {
				t.Errorf("DurationOf(16000) = %v, want %v", got, tt.duration)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []tts.Option
		wantErr error
	}{
		{"missing key", nil, tts.ErrNoAPIKey},
		{"missing voice", []tts.Option{tts.WithAPIKey("k")}, tts.ErrNoVoiceID},
		{"valid", []tts.Option{tts.WithAPIKey("k"), tts.WithVoice("v")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tts.NewElevenLabs(tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewElevenLabs() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		e := &tts.APIError{StatusCode: tt.status, Message: "x", Provider: "test"}
		if e.IsRetryable() != tt.retryable {
			t.Errorf("status %d: IsRetryable = %v", tt.status, e.IsRetryable())
		}
	}
	e := &tts.APIError{StatusCode: 401, Message: "bad key", Code: "invalid_api_key", Provider: "elevenlabs"}
	if want := "tts [elevenlabs]: API error 401 (invalid_api_key): bad key"; e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	bad := tts.WithError(errors.New("primary down"))
	good := tts.NewMock()

	chain, err := tts.NewChain(nil, nil, bad, good)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain.Providers()) != 2 {
		t.Errorf("nil provider not skipped: %d", len(chain.Providers()))
	}

	stream, err := chain.Stream(ctx, tts.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	stream.Close()
	if bad.CallCount("Stream") != 1 || good.CallCount("Stream") != 1 {
		t.Errorf("calls: bad=%d good=%d", bad.CallCount("Stream"), good.CallCount("Stream"))
	}

	e1, e2 := errors.New("one"), errors.New("two")
	all, _ := tts.NewChain(nil, tts.WithError(e1), tts.WithError(e2))
	_, err = all.Synthesize(ctx, tts.Request{Text: "hi"})
	var chainErr *tts.ChainError
	if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
		t.Fatalf("expected ChainError with 2 errors, got %v", err)
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Error("ChainError should match every provider error")
	}
	if err := all.Health(ctx); err == nil {
		t.Error("Health should fail when every provider fails")
	}

	if _, err := tts.NewChain(nil); !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Errorf("empty chain = %v", err)
	}
}

func TestElevenLabsStream(t *testing.T) {
	var payload map[string]any
	var query, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.RawQuery
		if r.Header.Get("xi-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		sonic.Unmarshal(body, &payload)
		w.Write(make([]byte, 6400))
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("secret"), tts.WithVoice("green"), tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	stream, err := p.Stream(context.Background(), tts.Request{Text: "สวัสดี", Language: "th-TH", Speed: 1.2})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()
	var total int
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatal(err)
		}
		if chunk == nil {
			break
		}
		total += len(chunk)
	}

	if total != 6400 {
		t.Errorf("read %d bytes, want 6400", total)
	}
	if path != "/text-to-speech/green/stream" {
		t.Errorf("path = %q", path)
	}
	if query != "output_format=pcm_16000" {
		t.Errorf("query = %q", query)
	}
	if payload["language_code"] != "th" || payload["model_id"] != tts.ModelFlashV2_5 {
		t.Errorf("payload = %v", payload)
	}
	vs, _ := payload["voice_settings"].(map[string]any)
	if vs["speed"] != 1.2 {
		t.Errorf("voice_settings = %v", vs)
	}
	if stream.Format().SampleRate != 16000 {
		t.Errorf("format = %+v", stream.Format())
	}
}

func TestElevenLabsRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithVoice("v"), tts.WithBaseURL(srv.URL), tts.WithRetry(2, time.Millisecond))
	result, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(result.Audio) != 4 || hits.Load() != 3 {
		t.Errorf("audio=%d hits=%d", len(result.Audio), hits.Load())
	}
}

func TestElevenLabsError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithVoice("v"), tts.WithBaseURL(srv.URL))
	_, err := p.Stream(context.Background(), tts.Request{Text: "hi"})

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Message != "Invalid API key" || apiErr.Code != "invalid_api_key" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if hits.Load() != 1 {
		t.Errorf("401 retried: %d hits", hits.Load())
	}

	if _, err := p.Stream(context.Background(), tts.Request{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("empty text = %v", err)
	}
}

func TestOpenAIStream(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		sonic.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(make([]byte, 4800))
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	result, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(result.Audio) != 4800 || result.Format.SampleRate != 24000 {
		t.Errorf("result = %d bytes at %d Hz", len(result.Audio), result.Format.SampleRate)
	}
	if result.Duration != 100*time.Millisecond {
		t.Errorf("Duration = %v", result.Duration)
	}
	if body["response_format"] != "pcm" || body["voice"] != "shimmer" || body["input"] != "hello" {
		t.Errorf("request body = %v", body)
	}
}

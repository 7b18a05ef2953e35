package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// SynthesizeFunc is called by Synthesize, and by Stream when StreamFunc
	// is nil. If nil, returns silence sized to the text.
	SynthesizeFunc func(ctx context.Context, req Request) (*AudioResult, error)

	StreamFunc func(ctx context.Context, req Request) (AudioStream, error)
	HealthFunc func(ctx context.Context) error
	CloseFunc  func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method  string
	Request Request
	Time    time.Time
}

// NewMock creates a mock producing 16kHz PCM silence, 20ms per character.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: Silence(EncodingPCM16, 20*time.Millisecond)}
}

// Silence returns a SynthesizeFunc that yields perChar of silence for each
// character of text.
func Silence(enc Encoding, perChar time.Duration) func(context.Context, Request) (*AudioResult, error) {
	return func(ctx context.Context, req Request) (*AudioResult, error) {
		format := FormatFor(enc)
		d := time.Duration(len([]rune(req.Text))) * perChar
		n := int(d * time.Duration(format.BytesPerSecond()) / time.Second)
		n -= n % 2
		return &AudioResult{
			Audio:     make([]byte, n),
			Format:    format,
			CharCount: len(req.Text),
			Duration:  d,
		}, nil
	}
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	m.recordCall("Synthesize", req)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Stream calls StreamFunc and records the call.
func (m *Mock) Stream(ctx context.Context, req Request) (AudioStream, error) {
	m.recordCall("Stream", req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	if m.SynthesizeFunc != nil {
		result, err := m.SynthesizeFunc(ctx, req)
		if err != nil {
			return nil, err
		}
		return newBufferStream(result.Audio, result.Format), nil
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.recordCall("Health", Request{})
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", Request{})
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) recordCall(method string, req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Request: req, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, req Request) (*AudioResult, error) {
			return nil, err
		},
		StreamFunc: func(ctx context.Context, req Request) (AudioStream, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// WithLatency delays every Synthesize and Stream call on m.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	wait := func(ctx context.Context) error {
		select {
		case <-time.After(delay):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	synth, stream := m.SynthesizeFunc, m.StreamFunc
	m.SynthesizeFunc = func(ctx context.Context, req Request) (*AudioResult, error) {
		if err := wait(ctx); err != nil {
			return nil, err
		}
		if synth != nil {
			return synth(ctx, req)
		}
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	if stream != nil {
		m.StreamFunc = func(ctx context.Context, req Request) (AudioStream, error) {
			if err := wait(ctx); err != nil {
				return nil, err
			}
			return stream(ctx, req)
		}
	}
	return m
}

var _ Provider = (*Mock)(nil)

package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-ecotrack/pkg/conversation"
)

// Mock implements conversation.Responder for testing.
type Mock struct {
	// RespondFunc is called when Respond is invoked.
	RespondFunc func(ctx context.Context, history []conversation.Utterance) (string, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Respond invocation.
type MockCall struct {
	History []conversation.Utterance
	Time    time.Time
}

// NewMock creates a mock that always answers reply.
func NewMock(reply string) *Mock {
	return &Mock{
		RespondFunc: func(context.Context, []conversation.Utterance) (string, error) {
			return reply, nil
		},
	}
}

// NewFailingMock creates a mock that always fails with err.
func NewFailingMock(err error) *Mock {
	return &Mock{
		RespondFunc: func(context.Context, []conversation.Utterance) (string, error) {
			return "", err
		},
	}
}

// Respond records the call and delegates to RespondFunc.
func (m *Mock) Respond(ctx context.Context, history []conversation.Utterance) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{History: append([]conversation.Utterance(nil), history...), Time: time.Now()})
	fn := m.RespondFunc
	m.mu.Unlock()

	if fn == nil {
		return "", ErrProviderUnavailable
	}
	return fn(ctx, history)
}

// Calls returns the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of Respond calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ conversation.Responder = (*Mock)(nil)

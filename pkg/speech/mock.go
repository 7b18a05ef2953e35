package speech

import (
	"errors"
	"sync"
)

// ErrInterrupted is what Mock reports to a cancelled utterance when
// InterruptOnCancel is set, the way browser engines do.
var ErrInterrupted = errors.New("speech: interrupted")

// Mock is a Provider driven by hand from tests.
type Mock struct {
	// AutoStart fires OnStart from inside Speak.
	AutoStart bool

	// InterruptOnCancel fires OnError(ErrInterrupted) on the cancelled
	// utterance.
	InterruptOnCancel bool

	mu        sync.Mutex
	available bool
	current   *Utterance
	spoken    []*Utterance
	cancels   int
}

// NewMock creates an available mock.
func NewMock() *Mock {
	return &Mock{available: true}
}

// SetAvailable toggles Available.
func (m *Mock) SetAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

// Available implements Provider.
func (m *Mock) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// Speak implements Provider.
func (m *Mock) Speak(u *Utterance) {
	m.mu.Lock()
	m.current = u
	m.spoken = append(m.spoken, u)
	auto := m.AutoStart
	m.mu.Unlock()
	if auto {
		u.start()
	}
}

// Cancel implements Provider.
func (m *Mock) Cancel() {
	m.mu.Lock()
	u := m.current
	m.current = nil
	m.cancels++
	interrupt := m.InterruptOnCancel
	m.mu.Unlock()
	if u != nil && interrupt {
		u.fail(ErrInterrupted)
	}
}

// Current returns the utterance being voiced, or nil.
func (m *Mock) Current() *Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Spoken returns every utterance passed to Speak.
func (m *Mock) Spoken() []*Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Utterance(nil), m.spoken...)
}

// Cancels returns how many times Cancel was called.
func (m *Mock) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Start reports the current utterance as audible.
func (m *Mock) Start() bool {
	u := m.Current()
	if u == nil {
		return false
	}
	u.start()
	return true
}

// Finish ends the current utterance normally.
func (m *Mock) Finish() bool {
	u := m.take()
	if u == nil {
		return false
	}
	u.end()
	return true
}

// Fail ends the current utterance with err.
func (m *Mock) Fail(err error) bool {
	u := m.take()
	if u == nil {
		return false
	}
	u.fail(err)
	return true
}

func (m *Mock) take() *Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.current
	m.current = nil
	return u
}

var _ Provider = (*Mock)(nil)

package capture

import (
	"context"
	"sync"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

// Mock is a scripted Provider for tests.
type Mock struct {
	mu        sync.Mutex
	available bool
	openErr   error
	sessions  []*MockSession
}

// NewMock returns an available mock recognizer.
func NewMock() *Mock {
	return &Mock{available: true}
}

// SetAvailable toggles Available.
func (m *Mock) SetAvailable(v bool) {
	m.mu.Lock()
	m.available = v
	m.mu.Unlock()
}

// FailOpen makes Open return err until called again with nil.
func (m *Mock) FailOpen(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *Mock) Open(ctx context.Context, opts Options, ev Events) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := &MockSession{Opts: opts, ev: ev}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// Opens returns the number of successful Open calls.
func (m *Mock) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Last returns the most recent session, or nil.
func (m *Mock) Last() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[len(m.sessions)-1]
}

// MockSession is a session opened by Mock.
type MockSession struct {
	Opts Options
	ev   Events

	mu      sync.Mutex
	chunks  int
	stopped bool
	aborted bool
	ended   bool
}

// Emit delivers a recognition result.
func (s *MockSession) Emit(r Result) {
	if s.ev.OnResult != nil {
		s.ev.OnResult(r)
	}
}

// Interim emits a non-final result.
func (s *MockSession) Interim(index int, text string) {
	s.Emit(Result{Index: index, Text: text})
}

// Final emits a final result.
func (s *MockSession) Final(index int, text string) {
	s.Emit(Result{Index: index, Text: text, IsFinal: true})
}

// End simulates the engine ending the session on its own.
func (s *MockSession) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	if s.ev.OnEnd != nil {
		s.ev.OnEnd()
	}
}

// Fail reports err and ends the session.
func (s *MockSession) Fail(err error) {
	if s.ev.OnError != nil {
		s.ev.OnError(err)
	}
	s.End()
}

func (s *MockSession) SendAudio(chunk audioio.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionClosed
	}
	s.chunks++
	return nil
}

func (s *MockSession) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.End()
	return nil
}

func (s *MockSession) Abort() error {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.End()
	return nil
}

// Chunks returns how many audio chunks the session received.
func (s *MockSession) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Stopped reports whether Stop was called.
func (s *MockSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Aborted reports whether Abort was called.
func (s *MockSession) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

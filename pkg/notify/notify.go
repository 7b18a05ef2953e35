// Package notify carries user-visible notices from the pipeline to
// whatever surface shows them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one message for the user.
type Notice struct {
	Level   Level     `json:"level"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives notices. Notify must not block.
type Sink interface {
	Notify(n Notice)
}

// Func adapts a function to Sink.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = Func(func(Notice) {})

// New builds a notice stamped with the current time.
func New(level Level, code, message string) Notice {
	return Notice{Level: level, Code: code, Message: message, At: time.Now()}
}

// LogSink writes notices to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify")}
}

// Notify implements Sink.
func (s *LogSink) Notify(n Notice) {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, n.Message, "code", n.Code)
}

// Multi fans a notice out to several sinks.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(n Notice) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Recorder keeps every notice. Useful in tests and for late subscribers.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Sink.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of what was recorded.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Codes returns the recorded codes in order.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, len(r.notices))
	for i, n := range r.notices {
		codes[i] = n.Code
	}
	return codes
}

// Reset forgets recorded notices.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

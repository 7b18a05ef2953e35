package speech

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Synthesizer owns the speaking flag. Only the most recent utterance may
// change it; callbacks from superseded utterances are ignored.
type Synthesizer struct {
	provider Provider
	lang     string
	rate     float64
	pitch    float64
	logger   *slog.Logger

	// opMu serializes Speak and StopSpeaking.
	opMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	pending  bool // an utterance was issued and has not finished
	speaking bool
	onChange []func(bool)
	onDone   []func(error)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the utterance language tag.
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.lang = lang }
}

// WithRate sets the speaking rate. 1.0 is normal.
func WithRate(rate float64) Option {
	return func(s *Synthesizer) { s.rate = rate }
}

// WithPitch sets the voice pitch. 1.0 is normal.
func WithPitch(pitch float64) Option {
	return func(s *Synthesizer) { s.pitch = pitch }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// New creates a synthesizer. provider may be nil; Speak then always
// returns ErrSynthesisUnavailable.
func New(provider Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		provider: provider,
		lang:     DefaultLanguage,
		rate:     1.0,
		pitch:    1.0,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speech.synthesizer")
	return s
}

// OnChange registers an observer of the speaking flag.
func (s *Synthesizer) OnChange(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnDone registers an observer called when the current utterance finishes
// on its own. err is nil for a normal end. It is not called for utterances
// that were stopped or replaced.
func (s *Synthesizer) OnDone(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = append(s.onDone, fn)
}

// Available reports whether speech can be produced.
func (s *Synthesizer) Available() bool {
	return s.provider != nil && s.provider.Available()
}

// IsSpeaking reports whether an utterance is audible.
func (s *Synthesizer) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Speak cancels whatever is playing and starts voicing text. The speaking
// flag turns on when the provider reports the start.
func (s *Synthesizer) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if !s.Available() {
		return ErrSynthesisUnavailable
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	wasSpeaking := s.speaking
	s.speaking = false
	s.pending = true
	s.mu.Unlock()

	s.provider.Cancel()
	if wasSpeaking {
		s.emitChange(false)
	}

	s.logger.Debug("speak", "chars", len(text), "lang", s.lang)
	s.provider.Speak(&Utterance{
		Text:    text,
		Lang:    s.lang,
		Rate:    s.rate,
		Pitch:   s.pitch,
		OnStart: func() { s.started(gen) },
		OnEnd:   func() { s.finished(gen, nil) },
		OnError: func(err error) { s.finished(gen, err) },
	})
	return nil
}

// StopSpeaking silences the current utterance. It is a no-op when nothing
// is queued or playing.
func (s *Synthesizer) StopSpeaking() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.pending && !s.speaking {
		s.mu.Unlock()
		return
	}
	s.gen++
	wasSpeaking := s.speaking
	s.speaking = false
	s.pending = false
	s.mu.Unlock()

	if s.provider != nil {
		s.provider.Cancel()
	}
	if wasSpeaking {
		s.logger.Debug("speech stopped")
		s.emitChange(false)
	}
}

func (s *Synthesizer) started(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.pending || s.speaking {
		s.mu.Unlock()
		return
	}
	s.speaking = true
	s.mu.Unlock()
	s.emitChange(true)
}

func (s *Synthesizer) finished(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	wasSpeaking := s.speaking
	s.speaking = false
	s.pending = false
	done := append(([]func(error))(nil), s.onDone...)
	s.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSpeechFailed, err)
		s.logger.Warn("utterance failed", "error", err)
	}
	if wasSpeaking {
		s.emitChange(false)
	}
	for _, fn := range done {
		fn(err)
	}
}

func (s *Synthesizer) emitChange(speaking bool) {
	s.mu.Lock()
	fns := append(([]func(bool))(nil), s.onChange...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(speaking)
	}
}

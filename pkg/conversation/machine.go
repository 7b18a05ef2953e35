package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// FallbackReply is appended when no reply could be generated.
const FallbackReply = "Sorry, I'm having trouble connecting right now. Please try again later."

// DefaultReplyTimeout bounds a single reply generation.
const DefaultReplyTimeout = 30 * time.Second

// Machine sequences listening, reply generation and speaking, and owns the
// transcript. All methods are safe for concurrent use. Callbacks run
// without internal locks held.
type Machine struct {
	responder Responder
	speaker   Speaker
	greeting  string
	fallback  string
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	onState     func(State)
	onUtterance func(Utterance)
	onFailure   func(error)

	mu         sync.Mutex
	state      State
	transcript []Utterance
	turn       uint64
	cancel     context.CancelFunc

	wg sync.WaitGroup
}

// Option configures a Machine.
type Option func(*Machine)

// WithSpeaker sets where replies are voiced.
func WithSpeaker(s Speaker) Option {
	return func(m *Machine) { m.speaker = s }
}

// WithGreeting seeds every fresh transcript with an assistant greeting.
func WithGreeting(text string) Option {
	return func(m *Machine) { m.greeting = strings.TrimSpace(text) }
}

// WithFallback overrides the apology used when generation fails.
func WithFallback(text string) Option {
	return func(m *Machine) {
		if strings.TrimSpace(text) != "" {
			m.fallback = text
		}
	}
}

// WithReplyTimeout bounds each reply generation.
func WithReplyTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithClock overrides the utterance timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// OnStateChange registers a state observer.
func OnStateChange(fn func(State)) Option {
	return func(m *Machine) { m.onState = fn }
}

// OnUtterance registers an observer for transcript appends.
func OnUtterance(fn func(Utterance)) Option {
	return func(m *Machine) { m.onUtterance = fn }
}

// OnFailure registers an observer for reply generation failures. The error
// matches ErrResponseGenerationFailed.
func OnFailure(fn func(error)) Option {
	return func(m *Machine) { m.onFailure = fn }
}

// New creates an idle machine.
func New(responder Responder, opts ...Option) *Machine {
	m := &Machine{
		responder: responder,
		fallback:  FallbackReply,
		timeout:   DefaultReplyTimeout,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "conversation.machine")
	m.transcript = m.seed()
	return m
}

func (m *Machine) seed() []Utterance {
	if m.greeting == "" {
		return nil
	}
	return []Utterance{{Role: RoleAssistant, Content: m.greeting, At: m.now()}}
}

// State returns the current phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transcript returns a copy of the transcript.
func (m *Machine) Transcript() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.transcript...)
}

// BeginListening enters Listening from Idle or Speaking. Silencing the
// current reply is the caller's job.
func (m *Machine) BeginListening() error {
	m.mu.Lock()
	if m.state == StateProcessing {
		m.mu.Unlock()
		return ErrBusy
	}
	changed := m.setStateLocked(StateListening)
	m.mu.Unlock()
	m.emitState(changed, StateListening)
	return nil
}

// CancelListening returns to Idle without committing anything.
func (m *Machine) CancelListening() {
	m.mu.Lock()
	if m.state != StateListening {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateIdle)
	m.mu.Unlock()
	m.emitState(true, StateIdle)
}

// SubmitUserUtterance appends the user's text and starts generating a
// reply in the background. Only one reply is generated at a time.
func (m *Machine) SubmitUserUtterance(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyUtterance
	}

	m.mu.Lock()
	if m.state == StateProcessing {
		m.mu.Unlock()
		return ErrBusy
	}
	u := Utterance{Role: RoleUser, Content: text, At: m.now()}
	m.transcript = append(m.transcript, u)
	m.setStateLocked(StateProcessing)
	m.turn++
	turn := m.turn
	history := append([]Utterance(nil), m.transcript...)

	// The reply outlives the caller's request but not a Reset.
	base := context.WithoutCancel(ctx)
	var rctx context.Context
	var cancel context.CancelFunc
	if m.timeout > 0 {
		rctx, cancel = context.WithTimeout(base, m.timeout)
	} else {
		rctx, cancel = context.WithCancel(base)
	}
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	m.emitUtterance(u)
	m.emitState(true, StateProcessing)

	go m.generate(rctx, cancel, turn, history)
	return nil
}

func (m *Machine) generate(ctx context.Context, cancel context.CancelFunc, turn uint64, history []Utterance) {
	defer m.wg.Done()
	defer cancel()

	start := time.Now()
	reply, err := m.respond(ctx, history)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrResponseGenerationFailed, err)
		reply = m.fallback
	}

	m.mu.Lock()
	u, ok := m.commitLocked(turn, strings.TrimSpace(reply))
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("reply no longer wanted", "turn", turn)
		return
	}
	if err != nil {
		m.logger.Warn("reply generation failed", "turn", turn, "error", err)
		if m.onFailure != nil {
			m.onFailure(err)
		}
	} else {
		m.logger.Debug("reply generated", "turn", turn, "latency", time.Since(start))
	}
	m.announce(turn, u)
}

func (m *Machine) respond(ctx context.Context, history []Utterance) (reply string, err error) {
	if m.responder == nil {
		return "", fmt.Errorf("no responder configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("responder panic: %v", r)
		}
	}()
	return m.responder.Respond(ctx, history)
}

// ReceiveResponse delivers an assistant reply for the pending turn and
// hands it to the speaker.
func (m *Machine) ReceiveResponse(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = m.fallback
	}
	m.mu.Lock()
	if m.state != StateProcessing {
		m.mu.Unlock()
		return ErrNotProcessing
	}
	turn := m.turn
	if m.cancel != nil {
		m.cancel()
	}
	// The turn is consumed before the generator can observe the cancel.
	u, _ := m.commitLocked(turn, text)
	m.mu.Unlock()

	m.announce(turn, u)
	return nil
}

// commitLocked appends the reply and moves to Speaking if turn is still
// the pending one. m.mu must be held.
func (m *Machine) commitLocked(turn uint64, text string) (Utterance, bool) {
	if turn != m.turn || m.state != StateProcessing {
		return Utterance{}, false
	}
	u := Utterance{Role: RoleAssistant, Content: text, At: m.now()}
	m.transcript = append(m.transcript, u)
	m.cancel = nil
	m.setStateLocked(StateSpeaking)
	return u, true
}

func (m *Machine) announce(turn uint64, u Utterance) {
	m.emitUtterance(u)
	m.emitState(true, StateSpeaking)
	m.speak(turn, u.Content)
}

func (m *Machine) speak(turn uint64, text string) {
	err := ErrNoSpeaker
	if m.speaker != nil {
		err = m.speaker.Speak(text)
	}
	if err == nil {
		return
	}
	m.logger.Info("reply not voiced", "error", err)

	m.mu.Lock()
	changed := turn == m.turn && m.state == StateSpeaking
	if changed {
		m.setStateLocked(StateIdle)
	}
	m.mu.Unlock()
	m.emitState(changed, StateIdle)
}

// Replay voices an earlier assistant utterance again.
func (m *Machine) Replay(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.transcript) || m.transcript[index].Role != RoleAssistant {
		m.mu.Unlock()
		return ErrNoSuchUtterance
	}
	if m.state == StateProcessing {
		m.mu.Unlock()
		return ErrBusy
	}
	text := m.transcript[index].Content
	turn := m.turn
	changed := m.setStateLocked(StateSpeaking)
	m.mu.Unlock()

	m.emitState(changed, StateSpeaking)
	m.speak(turn, text)
	return nil
}

// SpeechEnded returns to Idle after a reply finished or was cut off.
func (m *Machine) SpeechEnded() {
	m.mu.Lock()
	if m.state != StateSpeaking {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateIdle)
	m.mu.Unlock()
	m.emitState(true, StateIdle)
}

// Reset clears the transcript and drops any reply still being generated.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.turn++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.transcript = m.seed()
	changed := m.setStateLocked(StateIdle)
	m.mu.Unlock()
	m.emitState(changed, StateIdle)
}

// Wait blocks until background reply generation has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func (m *Machine) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.logger.Debug("state", "from", m.state, "to", s)
	m.state = s
	return true
}

func (m *Machine) emitState(changed bool, s State) {
	if changed && m.onState != nil {
		m.onState(s)
	}
}

func (m *Machine) emitUtterance(u Utterance) {
	if m.onUtterance != nil {
		m.onUtterance(u)
	}
}

package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
	"github.com/teslashibe/go-ecotrack/pkg/capture"
	"github.com/teslashibe/go-ecotrack/pkg/conversation"
	"github.com/teslashibe/go-ecotrack/pkg/notify"
	"github.com/teslashibe/go-ecotrack/pkg/speech"
	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
)

var (
	// ErrListening refuses to speak while the microphone is open.
	ErrListening = errors.New("voice: cannot speak while listening")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("voice: pipeline closed")

	// ErrReplyStopped drops a reply that was stopped before playback began.
	ErrReplyStopped = errors.New("voice: reply stopped before playback")
)

// Notice codes emitted by the pipeline.
const (
	CodeCaptureUnavailable      = "capture_unavailable"
	CodeCaptureLost             = "capture_lost"
	CodeSynthesisUnavailable    = "synthesis_unavailable"
	CodeSpeechFailed            = "speech_failed"
	CodeResponseFailed          = "response_failed"
	CodeStreamAcquisitionFailed = "stream_acquisition_failed"
)

// Flags are the two session flags. At most one is ever true.
type Flags struct {
	Listening bool `json:"listening"`
	Speaking  bool `json:"speaking"`
}

// Status is a snapshot of the pipeline.
type Status struct {
	SessionID  string             `json:"session_id"`
	State      conversation.State `json:"state"`
	Flags      Flags              `json:"flags"`
	Visual     string             `json:"visual"`
	Preview    string             `json:"preview"`
	Utterances int                `json:"utterances"`

	CaptureAvailable   bool `json:"capture_available"`
	SynthesisAvailable bool `json:"synthesis_available"`

	Metrics Metrics `json:"metrics"`
}

// Pipeline joins capture, conversation, speech and the visualizer into one
// call session and enforces the rules between them: listening always
// silences speech first, and nothing is spoken while listening.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	notifier notify.Sink
	metrics  *MetricsCollector

	capture *capture.Controller
	synth   *speech.Synthesizer
	machine *conversation.Machine
	vis     *visualizer.Visualizer
	sched   *visualizer.TickerScheduler // owned, nil when injected

	// opMu serializes the public operations.
	opMu sync.Mutex
	// cutMu orders listen start against a reply starting to speak.
	cutMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	flags     Flags
	preview   string
	closed    bool
	observers []func(Status)
}

type options struct {
	captureProvider capture.Provider
	speechProvider  speech.Provider
	responder       conversation.Responder
	mic             *audioio.Microphone
	sched           visualizer.FrameScheduler
	frames          visualizer.FrameSink
	notifier        notify.Sink
	logger          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*options)

// WithCapture sets the speech recognizer.
func WithCapture(p capture.Provider) Option {
	return func(o *options) { o.captureProvider = p }
}

// WithSynthesis sets the text-to-speech backend.
func WithSynthesis(p speech.Provider) Option {
	return func(o *options) { o.speechProvider = p }
}

// WithResponder sets the reply generator.
func WithResponder(r conversation.Responder) Option {
	return func(o *options) { o.responder = r }
}

// WithMicrophone shares mic between capture and the visualizer.
func WithMicrophone(mic *audioio.Microphone) Option {
	return func(o *options) { o.mic = mic }
}

// WithScheduler drives visualizer frames. By default frames tick at the
// configured frame rate.
func WithScheduler(s visualizer.FrameScheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithFrameSink receives rendered frames.
func WithFrameSink(s visualizer.FrameSink) Option {
	return func(o *options) { o.frames = s }
}

// WithNotifier receives user-visible notices.
func WithNotifier(s notify.Sink) Option {
	return func(o *options) { o.notifier = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a pipeline and starts the visualizer. Missing providers
// degrade the matching feature instead of failing.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notify.NewLogSink(o.logger)
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    o.logger.With("component", "voice.pipeline"),
		notifier:  o.notifier,
		metrics:   NewMetricsCollector(),
		sessionID: uuid.NewString(),
	}

	p.synth = speech.New(o.speechProvider,
		speech.WithLanguage(cfg.Language),
		speech.WithRate(cfg.SpeechRate),
		speech.WithPitch(cfg.SpeechPitch),
		speech.WithLogger(o.logger),
	)
	p.synth.OnChange(p.speakingChanged)
	p.synth.OnDone(p.speechDone)

	p.capture = capture.NewController(o.captureProvider,
		capture.WithMicrophone(o.mic),
		capture.WithLanguage(cfg.Language),
		capture.WithRestartPolicy(cfg.RestartDelay, cfg.MaxRestarts),
		capture.WithLogger(o.logger),
		capture.WithBeforeStart(p.synth.StopSpeaking),
		capture.OnPreview(p.previewChanged),
		capture.OnListeningChange(p.listeningChanged),
		capture.OnAbandon(p.captureLost),
	)

	p.machine = conversation.New(o.responder,
		conversation.WithSpeaker(conversation.SpeakerFunc(p.speak)),
		conversation.WithGreeting(cfg.Greeting),
		conversation.WithFallback(cfg.Fallback),
		conversation.WithReplyTimeout(cfg.ReplyTimeout),
		conversation.WithLogger(o.logger),
		conversation.OnStateChange(func(conversation.State) { p.publish() }),
		conversation.OnUtterance(p.utterance),
		conversation.OnFailure(p.replyFailed),
	)

	sched := o.sched
	if sched == nil {
		p.sched = visualizer.NewTickerScheduler(cfg.FrameRate)
		sched = p.sched
	}
	p.vis = visualizer.New(
		visualizer.WithScheduler(sched),
		visualizer.WithMicrophone(o.mic),
		visualizer.WithFrameSink(o.frames),
		visualizer.WithViewport(cfg.ViewportWidth, cfg.ViewportHeight),
		visualizer.WithLogger(o.logger),
		visualizer.OnError(p.streamFailed),
	)
	p.vis.Start()

	if !p.capture.Available() {
		p.logger.Warn("speech capture unavailable")
	}
	if !p.synth.Available() {
		p.logger.Warn("speech synthesis unavailable, replies will be text only")
	}
	p.logger.Info("pipeline ready", "session", p.sessionID, "language", cfg.Language)
	return p, nil
}

// StartListening silences any reply, then opens capture and binds the
// visualizer to the microphone. If capture cannot start the conversation
// stays idle, a notice is raised and the error matches
// capture.ErrCaptureUnavailable.
func (p *Pipeline) StartListening(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if p.isClosed() {
		return ErrClosed
	}
	return p.startListening(ctx)
}

func (p *Pipeline) startListening(ctx context.Context) error {
	if p.capture.IsListening() {
		return nil
	}

	// Capture silences the synthesizer before the listening flag rises.
	p.cutMu.Lock()
	if err := p.machine.BeginListening(); err != nil {
		p.cutMu.Unlock()
		return err
	}
	err := p.capture.StartListening(ctx)
	p.cutMu.Unlock()

	if err != nil {
		p.machine.CancelListening()
		p.logger.Warn("listening failed", "error", err)
		p.notify(notify.LevelWarning, CodeCaptureUnavailable, captureMessage(err))
		return err
	}

	// The orb falls back to the static circle if this fails.
	_ = p.vis.BindMicrophone(ctx)
	return nil
}

// StopListening closes capture and commits what was heard. It returns the
// committed text, or "" when nothing was recognized.
func (p *Pipeline) StopListening(ctx context.Context) (string, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if p.isClosed() {
		return "", ErrClosed
	}
	return p.stopListening(ctx)
}

func (p *Pipeline) stopListening(ctx context.Context) (string, error) {
	text := p.capture.StopListening()
	p.vis.UnbindMicrophone()
	if text == "" {
		p.machine.CancelListening()
		return "", nil
	}
	p.metrics.MarkCaptureEnd()
	if err := p.machine.SubmitUserUtterance(ctx, text); err != nil {
		p.machine.CancelListening()
		return "", err
	}
	return text, nil
}

// ToggleListening starts listening when idle and stops it otherwise, like
// the call screen's microphone button.
func (p *Pipeline) ToggleListening(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if p.isClosed() {
		return ErrClosed
	}
	if p.capture.IsListening() {
		_, err := p.stopListening(ctx)
		return err
	}
	return p.startListening(ctx)
}

// StopSpeaking cuts off the current reply. It is a no-op when nothing is
// being spoken.
func (p *Pipeline) StopSpeaking() {
	p.cutMu.Lock()
	defer p.cutMu.Unlock()
	p.synth.StopSpeaking()
	p.machine.SpeechEnded()
}

// SendText submits a typed message. Any reply still playing is silenced.
func (p *Pipeline) SendText(ctx context.Context, text string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if p.isClosed() {
		return ErrClosed
	}
	if p.capture.IsListening() {
		return ErrListening
	}
	p.StopSpeaking()
	p.metrics.MarkCaptureEnd()
	return p.machine.SubmitUserUtterance(ctx, text)
}

// Replay speaks the assistant utterance at index again.
func (p *Pipeline) Replay(index int) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if p.isClosed() {
		return ErrClosed
	}
	if p.capture.IsListening() {
		return ErrListening
	}
	return p.machine.Replay(index)
}

// Reset ends the session and starts a new one with a fresh transcript.
func (p *Pipeline) Reset() {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.capture.Abort()
	p.vis.UnbindMicrophone()
	p.synth.StopSpeaking()
	p.machine.Reset()

	p.mu.Lock()
	p.sessionID = uuid.NewString()
	p.preview = ""
	id := p.sessionID
	p.mu.Unlock()

	p.logger.Info("session reset", "session", id)
	p.publish()
}

// Close tears the session down and releases the microphone.
func (p *Pipeline) Close() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.capture.Abort()
	p.synth.StopSpeaking()
	p.vis.Stop()
	p.machine.Reset()
	p.machine.Wait()

	var err error
	if p.sched != nil {
		err = p.sched.Close()
	}
	p.logger.Info("pipeline closed")
	return err
}

// Status returns a snapshot of the session.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	s := Status{
		SessionID: p.sessionID,
		Flags:     p.flags,
		Preview:   p.preview,
	}
	p.mu.Unlock()

	s.Visual = visualizer.ModeFor(s.Flags.Listening, s.Flags.Speaking).String()
	s.State = p.machine.State()
	s.Utterances = len(p.machine.Transcript())
	s.CaptureAvailable = p.capture.Available()
	s.SynthesisAvailable = p.synth.Available()
	s.Metrics = p.metrics.Current()
	return s
}

// OnStatus registers an observer called on every status change.
func (p *Pipeline) OnStatus(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Transcript returns a copy of the conversation so far.
func (p *Pipeline) Transcript() []conversation.Utterance {
	return p.machine.Transcript()
}

// Flags returns the listening and speaking flags.
func (p *Pipeline) Flags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

// Visualizer returns the orb renderer.
func (p *Pipeline) Visualizer() *visualizer.Visualizer { return p.vis }

// Metrics returns the latency collector.
func (p *Pipeline) Metrics() *MetricsCollector { return p.metrics }

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Wait blocks until background reply generation has finished.
func (p *Pipeline) Wait() { p.machine.Wait() }

// speak is the conversation's speaker. Speaking while listening is refused
// so the machine drops back to idle with the reply kept in the transcript.
// A reply stopped between delivery and playback is dropped.
func (p *Pipeline) speak(text string) error {
	p.cutMu.Lock()
	defer p.cutMu.Unlock()

	if p.capture.IsListening() {
		p.logger.Debug("not speaking while listening")
		return ErrListening
	}
	if p.machine.State() != conversation.StateSpeaking {
		p.logger.Debug("reply stopped before playback")
		return ErrReplyStopped
	}
	err := p.synth.Speak(text)
	if errors.Is(err, speech.ErrSynthesisUnavailable) {
		p.notify(notify.LevelInfo, CodeSynthesisUnavailable, "Speech output is unavailable. Replies are shown as text.")
	}
	return err
}

func (p *Pipeline) listeningChanged(listening bool) {
	p.mu.Lock()
	p.flags.Listening = listening
	f := p.flags
	p.mu.Unlock()
	p.vis.SetFlags(f.Listening, f.Speaking)
	p.publish()
}

func (p *Pipeline) speakingChanged(speaking bool) {
	p.mu.Lock()
	p.flags.Speaking = speaking
	f := p.flags
	p.mu.Unlock()
	if f.Listening && f.Speaking {
		p.logger.Error("listening and speaking at once")
	}
	if speaking {
		p.metrics.MarkSpeechStart()
	}
	p.vis.SetFlags(f.Listening, f.Speaking)
	p.publish()
}

// speechDone fires only when the current utterance ends on its own, so a
// reply replaced by another never ends the speaking phase early.
func (p *Pipeline) speechDone(err error) {
	p.metrics.MarkSpeechEnd()
	if err != nil {
		p.notify(notify.LevelWarning, CodeSpeechFailed, "The reply could not be played.")
	}
	p.machine.SpeechEnded()
}

func (p *Pipeline) previewChanged(text string) {
	p.mu.Lock()
	changed := p.preview != text
	p.preview = text
	p.mu.Unlock()
	if changed {
		if text != "" {
			p.metrics.MarkPreview()
		}
		p.publish()
	}
}

func (p *Pipeline) utterance(u conversation.Utterance) {
	if u.Role == conversation.RoleAssistant {
		p.metrics.MarkResponse()
	}
	p.publish()
}

func (p *Pipeline) replyFailed(err error) {
	p.metrics.MarkFallback()
	p.notify(notify.LevelWarning, CodeResponseFailed, "Green could not reach the assistant service and replied with a fallback message.")
}

// captureLost runs when the recognizer kept ending and could not be
// reopened. Capture has already stopped and nothing was committed.
func (p *Pipeline) captureLost(err error) {
	p.vis.UnbindMicrophone()
	p.machine.CancelListening()
	p.logger.Warn("listening abandoned", "error", err)
	p.notify(notify.LevelWarning, CodeCaptureLost, "Listening stopped because speech recognition ended unexpectedly.")
}

func (p *Pipeline) streamFailed(err error) {
	p.notify(notify.LevelInfo, CodeStreamAcquisitionFailed, "Microphone visualization is unavailable.")
}

func (p *Pipeline) notify(level notify.Level, code, msg string) {
	p.notifier.Notify(notify.New(level, code, msg))
}

func (p *Pipeline) publish() {
	p.mu.Lock()
	fns := append(([]func(Status))(nil), p.observers...)
	p.mu.Unlock()
	if len(fns) == 0 {
		return
	}
	s := p.Status()
	for _, fn := range fns {
		fn(s)
	}
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func captureMessage(err error) string {
	var ce *capture.Error
	if errors.As(err, &ce) && ce.Op == "microphone" {
		return "Microphone access was denied or is unavailable."
	}
	return fmt.Sprintf("Speech recognition is not available: %v", err)
}

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

// Default restart policy for recognizers that end on their own.
const (
	DefaultRestartDelay = 250 * time.Millisecond
	DefaultMaxRestarts  = 5
)

// Controller runs speech capture for one conversation. It owns the
// listening flag and the live preview.
type Controller struct {
	provider     Provider
	mic          *audioio.Microphone
	opts         Options
	restartDelay time.Duration
	maxRestarts  int
	logger       *slog.Logger

	beforeStart func()
	onPreview   func(string)
	onChange    func(bool)
	onAbandon   func(error)

	// opMu serializes start, stop and restart.
	opMu sync.Mutex

	mu        sync.Mutex
	listening bool
	gen       uint64 // bumped on every start and stop
	seq       uint64 // bumped on every session open
	sid       uint64 // session whose events are accepted
	session   Session
	lease     *audioio.Lease
	cancel    context.CancelFunc

	committed []string       // text carried over from sessions that ended
	finals    map[int]string // final results of the current session
	interim   string
	interimAt int
	preview   string
}

// Option configures a Controller.
type Option func(*Controller)

// WithMicrophone feeds audio from mic into each session. Without one the
// provider is expected to capture audio itself.
func WithMicrophone(mic *audioio.Microphone) Option {
	return func(c *Controller) { c.mic = mic }
}

// WithOptions sets the recognition options.
func WithOptions(opts Options) Option {
	return func(c *Controller) { c.opts = opts }
}

// WithLanguage sets the recognition language tag.
func WithLanguage(lang string) Option {
	return func(c *Controller) { c.opts.Language = lang }
}

// WithRestartPolicy sets how auto-restart behaves when the recognizer
// ends while listening.
func WithRestartPolicy(delay time.Duration, maxAttempts int) Option {
	return func(c *Controller) {
		c.restartDelay = delay
		c.maxRestarts = maxAttempts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithBeforeStart registers a hook run at the top of StartListening.
func WithBeforeStart(fn func()) Option {
	return func(c *Controller) { c.beforeStart = fn }
}

// OnPreview registers a callback for preview changes.
func OnPreview(fn func(string)) Option {
	return func(c *Controller) { c.onPreview = fn }
}

// OnListeningChange registers a callback for listening flag changes.
func OnListeningChange(fn func(bool)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// OnAbandon registers a callback for when listening is dropped because
// the recognizer could not be restarted. Nothing is committed.
func OnAbandon(fn func(error)) Option {
	return func(c *Controller) { c.onAbandon = fn }
}

// NewController creates a controller. provider may be nil, in which case
// every StartListening fails with ErrCaptureUnavailable.
func NewController(provider Provider, opts ...Option) *Controller {
	c := &Controller{
		provider:     provider,
		opts:         DefaultOptions(),
		restartDelay: DefaultRestartDelay,
		maxRestarts:  DefaultMaxRestarts,
		logger:       slog.Default(),
		finals:       make(map[int]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "capture.controller")
	return c
}

// Available reports whether the recognizer can be used.
func (c *Controller) Available() bool {
	return c.provider != nil && c.provider.Available()
}

// IsListening reports whether capture is active.
func (c *Controller) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Preview returns the text recognized so far in this listening period.
func (c *Controller) Preview() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// StartListening opens the microphone and a recognition session. It is a
// no-op when already listening. On failure nothing changes and the error
// matches ErrCaptureUnavailable.
func (c *Controller) StartListening(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.IsListening() {
		return nil
	}
	if c.beforeStart != nil {
		c.beforeStart()
	}
	if !c.Available() {
		return &Error{Op: "recognizer"}
	}

	var lease *audioio.Lease
	if c.mic != nil {
		l, err := c.mic.Acquire(ctx)
		if err != nil {
			return &Error{Op: "microphone", Cause: err}
		}
		lease = l
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.seq++
	sid := c.seq
	c.sid = sid
	c.resetPreviewLocked()
	c.mu.Unlock()

	sess, err := c.provider.Open(ctx, c.opts, c.events(gen, sid))
	if err != nil {
		lease.Release()
		c.mu.Lock()
		c.sid = 0
		c.mu.Unlock()
		return &Error{Op: "open", Cause: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.session = sess
	c.lease = lease
	c.cancel = cancel
	c.listening = true
	c.mu.Unlock()

	if lease != nil {
		go c.pump(runCtx, lease)
	}
	c.logger.Info("listening started", "provider", c.provider.Name(), "language", c.opts.Language)
	c.emitChange(true)
	c.emitPreview("")
	return nil
}

// StopListening ends capture and returns the trimmed preview, the text to
// commit. It returns "" when not listening or nothing was recognized.
func (c *Controller) StopListening() string {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	text, _ := c.stop(false)
	return text
}

// Abort ends capture immediately and discards the preview.
func (c *Controller) Abort() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stop(true)
}

// stop must be called with opMu held.
func (c *Controller) stop(abort bool) (string, bool) {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return "", false
	}
	c.listening = false
	c.gen++
	c.sid = 0
	sess := c.session
	lease := c.lease
	cancel := c.cancel
	c.session, c.lease, c.cancel = nil, nil, nil
	text := strings.TrimSpace(c.preview)
	c.resetPreviewLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		var err error
		if abort {
			err = sess.Abort()
		} else {
			err = sess.Stop()
		}
		if err != nil {
			c.logger.Debug("session close failed", "error", err)
		}
	}
	lease.Release()

	c.logger.Info("listening stopped", "chars", len(text), "aborted", abort)
	c.emitChange(false)
	c.emitPreview("")
	if abort {
		return "", true
	}
	return text, true
}

func (c *Controller) pump(ctx context.Context, lease *audioio.Lease) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-lease.Chunks():
			if !ok {
				return
			}
			c.mu.Lock()
			sess := c.session
			c.mu.Unlock()
			if sess == nil {
				continue
			}
			if err := sess.SendAudio(chunk); err != nil {
				c.logger.Debug("dropping audio", "error", err)
			}
		}
	}
}

func (c *Controller) events(gen, sid uint64) Events {
	return Events{
		OnResult: func(r Result) { c.handleResult(gen, sid, r) },
		OnEnd:    func() { c.handleEnd(gen, sid) },
		OnError: func(err error) {
			c.logger.Warn("recognizer error", "error", err)
		},
	}
}

func (c *Controller) handleResult(gen, sid uint64, r Result) {
	c.mu.Lock()
	if gen != c.gen || sid != c.sid {
		c.mu.Unlock()
		return
	}
	if r.IsFinal {
		c.finals[r.Index] = r.Text
		if r.Index == c.interimAt {
			c.interim = ""
		}
	} else {
		c.interim = r.Text
		c.interimAt = r.Index
	}
	p := c.previewLocked()
	changed := p != c.preview
	c.preview = p
	c.mu.Unlock()

	if changed {
		c.emitPreview(p)
	}
}

// handleEnd keeps what the ended session produced and schedules a reopen.
func (c *Controller) handleEnd(gen, sid uint64) {
	c.mu.Lock()
	if gen != c.gen || sid != c.sid {
		c.mu.Unlock()
		return
	}
	c.committed = append(c.committed, c.sessionTextLocked()...)
	c.finals = make(map[int]string)
	c.interim = ""
	c.sid = 0
	c.session = nil
	c.mu.Unlock()

	c.logger.Debug("recognizer ended while listening, restarting")
	go c.restart(gen)
}

func (c *Controller) restart(gen uint64) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		time.Sleep(c.restartDelay)

		// Waits for an in-flight StartListening to settle.
		c.opMu.Lock()
		c.mu.Lock()
		if gen != c.gen || !c.listening {
			c.mu.Unlock()
			c.opMu.Unlock()
			return
		}
		c.seq++
		sid := c.seq
		c.sid = sid
		c.mu.Unlock()

		sess, err := c.provider.Open(context.Background(), c.opts, c.events(gen, sid))

		c.mu.Lock()
		if err == nil && gen == c.gen && c.listening {
			c.session = sess
			c.mu.Unlock()
			c.opMu.Unlock()
			c.logger.Info("recognizer restarted", "attempt", attempt)
			return
		}
		c.mu.Unlock()
		if err == nil {
			sess.Abort()
			c.opMu.Unlock()
			return
		}

		lastErr = err
		c.logger.Warn("recognizer restart failed", "attempt", attempt, "error", err)
		if attempt >= c.maxRestarts {
			c.stop(true)
			c.opMu.Unlock()
			if c.onAbandon != nil {
				c.onAbandon(fmt.Errorf("%w: %w", ErrRestartsExhausted, lastErr))
			}
			return
		}
		c.opMu.Unlock()
	}
}

func (c *Controller) resetPreviewLocked() {
	c.committed = nil
	c.finals = make(map[int]string)
	c.interim = ""
	c.interimAt = 0
	c.preview = ""
}

// sessionTextLocked returns the current session's finals in result order,
// followed by any pending interim text.
func (c *Controller) sessionTextLocked() []string {
	idx := make([]int, 0, len(c.finals))
	for i := range c.finals {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	parts := make([]string, 0, len(idx)+1)
	for _, i := range idx {
		if t := strings.TrimSpace(c.finals[i]); t != "" {
			parts = append(parts, t)
		}
	}
	if t := strings.TrimSpace(c.interim); t != "" {
		parts = append(parts, t)
	}
	return parts
}

func (c *Controller) previewLocked() string {
	parts := append(append([]string(nil), c.committed...), c.sessionTextLocked()...)
	return strings.Join(parts, " ")
}

func (c *Controller) emitChange(listening bool) {
	if c.onChange != nil {
		c.onChange(listening)
	}
}

func (c *Controller) emitPreview(p string) {
	if c.onPreview != nil {
		c.onPreview(p)
	}
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

// Deepgram defaults.
const (
	DefaultDeepgramURL   = "wss://api.deepgram.com"
	DefaultDeepgramModel = "nova-2"
	deepgramKeepAlive    = 5 * time.Second
	deepgramCloseGrace   = 3 * time.Second
)

// DeepgramConfig configures the Deepgram streaming recognizer.
type DeepgramConfig struct {
	APIKey      string `yaml:"-" json:"-"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	Model       string `yaml:"model" json:"model"`
	Punctuate   bool   `yaml:"punctuate" json:"punctuate"`
	SmartFormat bool   `yaml:"smart_format" json:"smart_format"`
	// Endpointing is the silence in milliseconds that closes an utterance.
	// Zero leaves the server default.
	Endpointing int `yaml:"endpointing" json:"endpointing"`
}

// DefaultDeepgramConfig returns the settings used for conversational
// capture.
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL:     DefaultDeepgramURL,
		Model:       DefaultDeepgramModel,
		Punctuate:   true,
		SmartFormat: true,
	}
}

// Deepgram is a Provider backed by Deepgram's live transcription API.
type Deepgram struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewDeepgram creates the provider. It reports unavailable without a key.
func NewDeepgram(cfg DeepgramConfig, logger *slog.Logger) *Deepgram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepgramURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultDeepgramModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deepgram{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "capture.deepgram"),
	}
}

// Name returns "deepgram".
func (d *Deepgram) Name() string { return "deepgram" }

// Available reports whether an API key is configured.
func (d *Deepgram) Available() bool { return d.cfg.APIKey != "" }

// Open dials a live transcription session.
func (d *Deepgram) Open(ctx context.Context, opts Options, ev Events) (Session, error) {
	if d.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	u, err := d.listenURL(opts)
	if err != nil {
		return nil, err
	}

	hdr := http.Header{"Authorization": {"Token " + d.cfg.APIKey}}
	conn, resp, err := d.dialer.DialContext(ctx, u, hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	s := &deepgramSession{
		conn:   conn,
		ev:     ev,
		done:   make(chan struct{}),
		logger: d.logger,
	}
	go s.readLoop()
	go s.keepAlive()
	return s, nil
}

func (d *Deepgram) listenURL(opts Options) (string, error) {
	base, err := url.Parse(d.cfg.BaseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram url: %w", err)
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	q := base.Query()
	q.Set("model", d.cfg.Model)
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	q.Set("punctuate", strconv.FormatBool(d.cfg.Punctuate))
	q.Set("smart_format", strconv.FormatBool(d.cfg.SmartFormat))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	if d.cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(d.cfg.Endpointing))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// deepgramMessage covers the server messages this client reads.
type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

type deepgramSession struct {
	conn   *websocket.Conn
	ev     Events
	logger *slog.Logger

	writeMu  sync.Mutex
	mu       sync.Mutex
	stopping bool
	closed   bool
	done     chan struct{}

	index int // owned by readLoop
}

func (s *deepgramSession) SendAudio(chunk audioio.AudioChunk) error {
	s.mu.Lock()
	closed := s.closed || s.stopping
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.write(websocket.BinaryMessage, chunk.Bytes())
}

// Stop asks the server to flush and close. The connection is dropped if
// the server does not close within a grace period.
func (s *deepgramSession) Stop() error {
	s.mu.Lock()
	if s.stopping || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	err := s.control("CloseStream")
	go func() {
		select {
		case <-s.done:
		case <-time.After(deepgramCloseGrace):
			s.conn.Close()
		}
	}()
	return err
}

func (s *deepgramSession) Abort() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *deepgramSession) control(kind string) error {
	msg, err := sonic.Marshal(map[string]string{"type": kind})
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, msg)
}

func (s *deepgramSession) write(kind int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(kind, data); err != nil {
		return fmt.Errorf("deepgram write: %w", err)
	}
	return nil
}

func (s *deepgramSession) readLoop() {
	defer func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.conn.Close()
		close(s.done)
		if s.ev.OnEnd != nil {
			s.ev.OnEnd()
		}
	}()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			expected := s.stopping || s.closed
			s.mu.Unlock()
			if !expected && !websocket.IsCloseError(err, websocket.CloseNormalClosure) && s.ev.OnError != nil {
				s.ev.OnError(err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := s.handle(data); err != nil {
			s.logger.Debug("ignoring message", "error", err)
		}
	}
}

func (s *deepgramSession) handle(data []byte) error {
	var msg deepgramMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return nil
		}
		text := msg.Channel.Alternatives[0].Transcript
		final := msg.IsFinal || msg.SpeechFinal
		if text == "" && !final {
			return nil
		}
		if s.ev.OnResult != nil {
			s.ev.OnResult(Result{Index: s.index, Text: text, IsFinal: final})
		}
		if final && text != "" {
			s.index++
		}
	case "Error":
		if s.ev.OnError != nil {
			s.ev.OnError(errors.New("deepgram: " + msg.Description))
		}
	}
	return nil
}

func (s *deepgramSession) keepAlive() {
	t := time.NewTicker(deepgramKeepAlive)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.control("KeepAlive"); err != nil {
				return
			}
		}
	}
}

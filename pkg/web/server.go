// Package web serves the EcoTrack call screen: a JSON API for the voice
// session and websocket feeds for status, notices, orb frames and audio.
package web

import (
	"bytes"
	"context"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
	"github.com/teslashibe/go-ecotrack/pkg/hub"
	"github.com/teslashibe/go-ecotrack/pkg/notify"
	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
	"github.com/teslashibe/go-ecotrack/pkg/voice"
)

const maxNotices = 100

// Config configures the server.
type Config struct {
	Addr      string  `yaml:"addr"`
	StaticDir string  `yaml:"static_dir"`
	FrameRate float64 `yaml:"frame_rate"` // orb frames per second sent to browsers
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{Addr: ":8080", FrameRate: 15}
}

// Server is the call screen server
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	pipeline *voice.Pipeline
	mic      *audioio.StreamSource

	micStats     audioio.SourceWithStats
	speakerStats audioio.SinkWithStats

	// Hubs for websocket broadcast
	statusHub  *hub.Hub
	noticeHub  *hub.Hub
	frameHub   *hub.Hub
	speakerHub *hub.Hub

	frames *rate.Limiter

	noticesMu sync.RWMutex
	notices   []notify.Notice
}

// NewServer creates a server. Attach a pipeline before serving API calls.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultConfig().FrameRate
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger.With("component", "web.server"),
		statusHub:  hub.New("status", hub.WithLogger(logger), hub.KeepLast()),
		noticeHub:  hub.New("notices", hub.WithLogger(logger)),
		frameHub:   hub.New("visualizer", hub.WithLogger(logger)),
		speakerHub: hub.New("speaker", hub.WithLogger(logger)),
		frames:     rate.NewLimiter(rate.Limit(cfg.FrameRate), 1),
		notices:    make([]notify.Notice, 0, maxNotices),
	}

	app := fiber.New(fiber.Config{
		AppName:               "EcoTrack Green",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	// API routes
	api := app.Group("/api", s.requirePipeline)
	api.Get("/status", s.handleStatus)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/notices", s.handleNotices)
	api.Post("/listen/start", s.handleStartListening)
	api.Post("/listen/stop", s.handleStopListening)
	api.Post("/listen/toggle", s.handleToggleListening)
	api.Post("/speak/stop", s.handleStopSpeaking)
	api.Post("/messages", s.handleSendMessage)
	api.Post("/messages/:index/speak", s.handleReplay)
	api.Post("/session/reset", s.handleReset)
	api.Put("/viewport", s.handleViewport)
	api.Get("/visualizer.png", s.handleSnapshot)
	api.Get("/audio", s.handleAudio)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.hubHandler(s.statusHub)))
	app.Get("/ws/notices", websocket.New(s.hubHandler(s.noticeHub)))
	app.Get("/ws/visualizer", websocket.New(s.hubHandler(s.frameHub)))
	app.Get("/ws/speaker", websocket.New(s.hubHandler(s.speakerHub)))
	app.Get("/ws/mic", websocket.New(s.handleMicWS))

	s.app = app
	return s
}

// Attach connects the server to a pipeline and, optionally, the source
// that browser microphone audio is pushed into.
func (s *Server) Attach(p *voice.Pipeline, mic *audioio.StreamSource) {
	s.pipeline = p
	s.mic = mic
	p.OnStatus(s.PublishStatus)
	s.PublishStatus(p.Status())
}

// WatchAudio exposes input and output counters on /api/audio. Either may
// be nil.
func (s *Server) WatchAudio(mic audioio.SourceWithStats, speaker audioio.SinkWithStats) {
	s.micStats = mic
	s.speakerStats = speaker
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	for _, h := range []*hub.Hub{s.statusHub, s.noticeHub, s.frameHub, s.speakerHub} {
		go h.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(s.cfg.Addr) }()
	s.logger.Info("call screen listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

// PublishStatus broadcasts a status snapshot to /ws/status clients.
func (s *Server) PublishStatus(st voice.Status) {
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.logger.Warn("status not encoded", "error", err)
	}
}

// Notify implements notify.Sink. Notices are kept for /api/notices and
// pushed to /ws/notices clients.
func (s *Server) Notify(n notify.Notice) {
	s.noticesMu.Lock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[1:]
	}
	s.noticesMu.Unlock()
	s.noticeHub.BroadcastJSON(n)
}

// Frame implements visualizer.FrameSink. Frames are encoded only when
// someone is watching, and no faster than the configured rate.
func (s *Server) Frame(fr visualizer.Frame) {
	if s.frameHub.ClientCount() == 0 || !s.frames.Allow() {
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, fr.Image); err != nil {
		s.logger.Debug("frame not encoded", "error", err)
		return
	}
	s.frameHub.BroadcastBinary(buf.Bytes())
}

// SpeakerOutput returns a function that forwards synthesized audio to
// /ws/speaker clients as PCM16 binary messages.
func (s *Server) SpeakerOutput() func(audioio.AudioChunk) {
	return func(chunk audioio.AudioChunk) {
		s.speakerHub.BroadcastBinary(chunk.Bytes())
	}
}

// SpeakerClear tells /ws/speaker clients to drop queued audio.
func (s *Server) SpeakerClear() {
	s.speakerHub.BroadcastJSON(fiber.Map{"type": "clear"})
}

func (s *Server) hubHandler(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.NewClient(h, c).Run()
	}
}

var (
	_ notify.Sink          = (*Server)(nil)
	_ visualizer.FrameSink = (*Server)(nil)
)

package ecotrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
	"github.com/teslashibe/go-ecotrack/pkg/capture"
	"github.com/teslashibe/go-ecotrack/pkg/conversation"
	"github.com/teslashibe/go-ecotrack/pkg/inference"
	"github.com/teslashibe/go-ecotrack/pkg/notify"
	"github.com/teslashibe/go-ecotrack/pkg/speech"
	"github.com/teslashibe/go-ecotrack/pkg/tts"
	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
	"github.com/teslashibe/go-ecotrack/pkg/voice"
	"github.com/teslashibe/go-ecotrack/pkg/web"
)

// App is the main application orchestrator.
// It owns every component and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	// Microphone input, shared by capture and the orb. With the stream
	// backend it is fed by the browser over /ws/mic.
	micInput   audioio.Source
	microphone *audioio.Microphone
	speaker    audioio.Sink

	pipeline  *voice.Pipeline
	webServer *web.Server
}

type options struct {
	logger    *slog.Logger
	capture   capture.Provider
	speech    speech.Provider
	responder conversation.Responder
	scheduler visualizer.FrameScheduler
	notifier  notify.Sink
}

// Option overrides a component built from Config.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCaptureProvider replaces the Deepgram recognizer.
func WithCaptureProvider(p capture.Provider) Option {
	return func(o *options) { o.capture = p }
}

// WithSpeechProvider replaces the tts player.
func WithSpeechProvider(p speech.Provider) Option {
	return func(o *options) { o.speech = p }
}

// WithResponder replaces the reply chain.
func WithResponder(r conversation.Responder) Option {
	return func(o *options) { o.responder = r }
}

// WithScheduler replaces the orb frame ticker.
func WithScheduler(s visualizer.FrameScheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithNotifier receives notices in addition to the web server and log.
func WithNotifier(s notify.Sink) Option {
	return func(o *options) { o.notifier = s }
}

// New validates cfg and builds every component. Nothing is started
// except the orb's frame loop.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		config: cfg,
		logger: o.logger.With("component", "ecotrack.app"),
	}
	a.webServer = web.NewServer(cfg.Web, o.logger)
	src, err := audioio.NewSource(cfg.Audio, o.logger)
	if err != nil {
		return nil, fmt.Errorf("audio input: %w", err)
	}
	a.micInput = src
	a.microphone = audioio.NewMicrophone(audioio.Shared(src), o.logger)

	rec := o.capture
	if rec == nil {
		rec = a.newRecognizer()
	}
	responder := o.responder
	if responder == nil {
		r, err := a.newResponder()
		if err != nil {
			return nil, fmt.Errorf("responder: %w", err)
		}
		responder = r
	}
	synth := o.speech
	if synth == nil {
		synth = a.newPlayer()
	}

	notices := notify.Multi{a.webServer, notify.NewLogSink(o.logger)}
	if o.notifier != nil {
		notices = append(notices, o.notifier)
	}

	popts := []voice.Option{
		voice.WithCapture(rec),
		voice.WithSynthesis(synth),
		voice.WithResponder(responder),
		voice.WithMicrophone(a.microphone),
		voice.WithFrameSink(a.webServer),
		voice.WithNotifier(notices),
		voice.WithLogger(o.logger),
	}
	if o.scheduler != nil {
		popts = append(popts, voice.WithScheduler(o.scheduler))
	}
	p, err := voice.New(cfg.Voice, popts...)
	if err != nil {
		return nil, fmt.Errorf("voice pipeline: %w", err)
	}
	a.pipeline = p

	browserMic, _ := src.(*audioio.StreamSource)
	a.webServer.Attach(p, browserMic)
	srcStats, _ := src.(audioio.SourceWithStats)
	sinkStats, _ := a.speaker.(audioio.SinkWithStats)
	a.webServer.WatchAudio(srcStats, sinkStats)

	a.logger.Info("ecotrack ready",
		"capture", p.Status().CaptureAvailable,
		"synthesis", p.Status().SynthesisAvailable,
		"tts", cfg.TTS,
	)
	return a, nil
}

// Run serves the call screen until ctx is cancelled, then closes the
// pipeline.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.webServer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Shutdown()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the pipeline and releases the audio devices. It is safe
// to call more than once.
func (a *App) Shutdown() {
	a.pipeline.Close()
	a.micInput.Close()
	if a.speaker != nil {
		a.speaker.Close()
	}
}

// Pipeline returns the voice pipeline.
func (a *App) Pipeline() *voice.Pipeline { return a.pipeline }

// Server returns the web server.
func (a *App) Server() *web.Server { return a.webServer }

// Config returns the configuration the app was built with.
func (a *App) Config() Config { return a.config }

// newRecognizer builds Deepgram. Without a key it reports unavailable.
func (a *App) newRecognizer() capture.Provider {
	dg := a.config.Deepgram
	dg.APIKey = a.config.DeepgramKey
	if dg.APIKey == "" {
		a.logger.Warn("DEEPGRAM_API_KEY not set, voice input disabled")
	}
	return capture.NewDeepgram(dg, a.logger)
}

// newResponder chains the chat model, when configured, in front of the
// canned answers so a reply always comes back.
func (a *App) newResponder() (conversation.Responder, error) {
	canned := inference.NewCanned(a.config.CannedDelay, nil)
	client, err := inference.NewClient(
		inference.WithAPIKey(a.config.OpenAIKey),
		inference.WithBaseURL(a.config.LLMBaseURL),
		inference.WithModel(a.config.Model),
		inference.WithLogger(a.logger),
	)
	if err != nil {
		a.logger.Warn("chat model disabled, using canned replies", "error", err)
		return inference.NewChainWithLogger(a.logger, canned)
	}
	return inference.NewChainWithLogger(a.logger, client, canned)
}

// newPlayer builds the tts backend and plays it to /ws/speaker clients.
// It returns nil when no backend is configured.
func (a *App) newPlayer() speech.Provider {
	backend := a.newTTS()
	if backend == nil {
		return nil
	}
	sink, err := audioio.NewSink(a.config.Audio, a.logger,
		audioio.WithOutput(a.webServer.SpeakerOutput()),
		audioio.WithClearHook(a.webServer.SpeakerClear),
	)
	if err != nil {
		a.logger.Warn("speaker disabled", "error", err)
		return nil
	}
	a.speaker = sink
	return speech.NewPlayer(backend, sink, a.logger)
}

func (a *App) newTTS() tts.Provider {
	cfg := a.config
	if cfg.TTS == TTSNone {
		return nil
	}

	var providers []tts.Provider
	if (cfg.TTS == TTSAuto || cfg.TTS == TTSElevenLabs) && cfg.ElevenLabsKey != "" {
		el, err := tts.NewElevenLabs(
			tts.WithAPIKey(cfg.ElevenLabsKey),
			tts.WithVoice(cfg.TTSVoice),
			tts.WithLanguage(cfg.Voice.Language),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			a.logger.Warn("elevenlabs tts disabled", "error", err)
		} else {
			providers = append(providers, el)
		}
	}
	if (cfg.TTS == TTSAuto || cfg.TTS == TTSOpenAI) && cfg.OpenAIKey != "" {
		oa, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.OpenAIKey),
			tts.WithLanguage(cfg.Voice.Language),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			a.logger.Warn("openai tts disabled", "error", err)
		} else {
			providers = append(providers, oa)
		}
	}

	chain, err := tts.NewChain(a.logger, providers...)
	if err != nil {
		a.logger.Warn("no tts backend configured, replies will be text only")
		return nil
	}
	return chain
}

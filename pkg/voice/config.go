package voice

import (
	"errors"
	"time"

	"github.com/teslashibe/go-ecotrack/pkg/capture"
	"github.com/teslashibe/go-ecotrack/pkg/conversation"
	"github.com/teslashibe/go-ecotrack/pkg/visualizer"
)

// DefaultGreeting opens every call with Green's introduction.
const DefaultGreeting = "สวัสดี Gosoft ! ผมชื่อกรีน\n\n" +
	"วันนี้ผมจะมาช่วยคุณจัดการขยะรวมถึงบริการทรัพยากร มีเรื่องไหนอยากให้ช่วยเหลือไหมครับ!\n\n" +
	"Hello Gosoft! My name is Green. Today, I will help you manage your waste. " +
	"Including resource services, if there is anything you want me to help with, please let me know!"

// Config holds the tunable parameters of the pipeline, grouped by stage.
type Config struct {
	// Language is the BCP-47 tag used for both recognition and speech.
	Language string `yaml:"language"`

	// Conversation
	Greeting     string        `yaml:"greeting"`
	Fallback     string        `yaml:"fallback"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// Capture auto-restart
	RestartDelay time.Duration `yaml:"restart_delay"`
	MaxRestarts  int           `yaml:"max_restarts"`

	// Speech
	SpeechRate  float64 `yaml:"speech_rate"`
	SpeechPitch float64 `yaml:"speech_pitch"`

	// Visualizer
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
	FrameRate      int `yaml:"frame_rate"`
}

// DefaultConfig returns the settings of the EcoTrack call interface.
func DefaultConfig() Config {
	return Config{
		Language: capture.DefaultLanguage,

		Greeting:     DefaultGreeting,
		Fallback:     conversation.FallbackReply,
		ReplyTimeout: conversation.DefaultReplyTimeout,

		RestartDelay: capture.DefaultRestartDelay,
		MaxRestarts:  capture.DefaultMaxRestarts,

		SpeechRate:  1.0,
		SpeechPitch: 1.0,

		ViewportWidth:  visualizer.DefaultViewportWidth,
		ViewportHeight: visualizer.DefaultViewportHeight,
		FrameRate:      visualizer.DefaultFrameRate,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Language == "" {
		return errors.New("voice: language required")
	}
	if c.ReplyTimeout < 0 {
		return errors.New("voice: reply timeout must not be negative")
	}
	if c.RestartDelay < 0 || c.MaxRestarts < 0 {
		return errors.New("voice: restart policy must not be negative")
	}
	if c.SpeechRate < 0.1 || c.SpeechRate > 10 {
		return errors.New("voice: speech rate must be between 0.1 and 10")
	}
	if c.SpeechPitch < 0 || c.SpeechPitch > 2 {
		return errors.New("voice: speech pitch must be between 0 and 2")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return errors.New("voice: viewport must be positive")
	}
	if c.FrameRate <= 0 {
		return errors.New("voice: frame rate must be positive")
	}
	return nil
}

// WithLanguage returns a copy with the language set.
func (c Config) WithLanguage(lang string) Config {
	c.Language = lang
	return c
}

// WithGreeting returns a copy with the greeting set. Empty disables it.
func (c Config) WithGreeting(text string) Config {
	c.Greeting = text
	return c
}

// WithSpeech returns a copy with rate and pitch set.
func (c Config) WithSpeech(rate, pitch float64) Config {
	c.SpeechRate = rate
	c.SpeechPitch = pitch
	return c
}

// WithViewport returns a copy with the viewport set.
func (c Config) WithViewport(w, h int) Config {
	c.ViewportWidth = w
	c.ViewportHeight = h
	return c
}

// WithRestartPolicy returns a copy with the capture restart policy set.
func (c Config) WithRestartPolicy(delay time.Duration, maxRestarts int) Config {
	c.RestartDelay = delay
	c.MaxRestarts = maxRestarts
	return c
}

// Package ecotrack assembles the Green voice assistant: speech capture,
// reply generation, speech output and the orb, served to the browser
// call screen.
package ecotrack

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-ecotrack/internal/config"
	"github.com/teslashibe/go-ecotrack/pkg/audioio"
	"github.com/teslashibe/go-ecotrack/pkg/capture"
	"github.com/teslashibe/go-ecotrack/pkg/inference"
	"github.com/teslashibe/go-ecotrack/pkg/voice"
	"github.com/teslashibe/go-ecotrack/pkg/web"
)

// TTS modes.
const (
	TTSAuto       = "auto" // ElevenLabs, falling back to OpenAI
	TTSElevenLabs = "elevenlabs"
	TTSOpenAI     = "openai"
	TTSNone       = "none"
)

// DefaultElevenLabsVoice is a multilingual voice that handles Thai.
const DefaultElevenLabsVoice = "pFZP5JQG7iQjIQuC4Bku"

// DefaultCannedDelay is how long the offline responder pretends to think.
const DefaultCannedDelay = time.Second

// Config holds all configuration for the application.
// Flag parsing is done in cmd/ecotrack; this struct is data only.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Voice    voice.Config           `yaml:"voice"`
	Web      web.Config             `yaml:"web"`
	Audio    audioio.Config         `yaml:"audio"`
	Deepgram capture.DeepgramConfig `yaml:"deepgram"`

	// TTS selects the speech backend: auto, elevenlabs, openai or none.
	TTS      string `yaml:"tts"`
	TTSVoice string `yaml:"tts_voice"`

	// Chat model settings. Without an API key replies come from the
	// canned responder only.
	Model       string        `yaml:"model"`
	LLMBaseURL  string        `yaml:"llm_base_url"`
	CannedDelay time.Duration `yaml:"canned_delay"`

	// API keys, from the environment only.
	OpenAIKey     string `yaml:"-"`
	DeepgramKey   string `yaml:"-"`
	ElevenLabsKey string `yaml:"-"`
}

// DefaultConfig returns the defaults for a Thai-speaking kiosk.
func DefaultConfig() Config {
	llm := inference.DefaultConfig()
	return Config{
		LogLevel:    "info",
		Voice:       voice.DefaultConfig(),
		Web:         web.DefaultConfig(),
		Audio:       audioio.DefaultConfig(),
		Deepgram:    capture.DefaultDeepgramConfig(),
		TTS:         TTSAuto,
		TTSVoice:    DefaultElevenLabsVoice,
		Model:       llm.Model,
		LLMBaseURL:  llm.BaseURL,
		CannedDelay: DefaultCannedDelay,
	}
}

// Load reads .env, then the optional YAML file at path, then environment
// overrides, on top of DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := config.LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := config.LoadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.LoadEnvConfig()
	return cfg, nil
}

// LoadEnvConfig applies environment overrides.
func (c *Config) LoadEnvConfig() {
	c.OpenAIKey = config.String("OPENAI_API_KEY", c.OpenAIKey)
	c.DeepgramKey = config.String("DEEPGRAM_API_KEY", c.DeepgramKey)
	c.ElevenLabsKey = config.String("ELEVENLABS_API_KEY", c.ElevenLabsKey)
	c.TTSVoice = config.String("ELEVENLABS_VOICE_ID", c.TTSVoice)

	c.LogLevel = config.String("ECOTRACK_LOG_LEVEL", c.LogLevel)
	c.Voice.Language = config.String("ECOTRACK_LANGUAGE", c.Voice.Language)
	c.Voice.ReplyTimeout = config.Duration("ECOTRACK_REPLY_TIMEOUT", c.Voice.ReplyTimeout)
	c.Voice.SpeechRate = config.Float("ECOTRACK_SPEECH_RATE", c.Voice.SpeechRate)
	c.Web.Addr = config.String("ECOTRACK_ADDR", c.Web.Addr)
	c.Web.StaticDir = config.String("ECOTRACK_STATIC_DIR", c.Web.StaticDir)
	c.TTS = config.String("ECOTRACK_TTS", c.TTS)
	c.Model = config.String("ECOTRACK_MODEL", c.Model)
	c.LLMBaseURL = config.String("ECOTRACK_LLM_BASE_URL", c.LLMBaseURL)
	c.CannedDelay = config.Duration("ECOTRACK_CANNED_DELAY", c.CannedDelay)
}

// Validate checks that the configuration is usable. Missing API keys only
// disable the matching feature, except when a backend is asked for by name.
func (c *Config) Validate() error {
	if err := c.Voice.Validate(); err != nil {
		return &ConfigError{Field: "Voice", Message: err.Error()}
	}
	if err := c.Audio.Validate(); err != nil {
		return &ConfigError{Field: "Audio", Message: err.Error()}
	}
	if c.Web.Addr == "" {
		return &ConfigError{Field: "Web.Addr", Message: "listen address is required"}
	}
	if c.CannedDelay < 0 {
		return &ConfigError{Field: "CannedDelay", Message: "canned_delay must not be negative"}
	}
	switch c.TTS {
	case TTSAuto, TTSNone:
	case TTSElevenLabs:
		if c.ElevenLabsKey == "" {
			return &ConfigError{Field: "ElevenLabsKey", Message: "ELEVENLABS_API_KEY environment variable is required for ElevenLabs TTS"}
		}
	case TTSOpenAI:
		if c.OpenAIKey == "" {
			return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for OpenAI TTS"}
		}
	default:
		return &ConfigError{Field: "TTS", Message: fmt.Sprintf("unknown tts mode %q", c.TTS)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

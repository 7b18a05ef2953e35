// Package inference generates the assistant's replies.
//
// Client talks to any OpenAI-compatible chat completion endpoint. Canned
// answers locally without a network. Chain falls back from one to the
// next. All of them satisfy conversation.Responder.
package inference

import (
	"log/slog"
	"time"
)

// DefaultSystemPrompt introduces the "Green" waste-management persona.
const DefaultSystemPrompt = `You are Green (กรีน), the EcoTrack assistant for Gosoft. ` +
	`You help people sort and reduce waste and use resource services. ` +
	`Answer in the language the user speaks, Thai by default. ` +
	`Replies are read aloud, so keep them short, friendly and free of markdown.`

// Config holds provider configuration.
type Config struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"-" json:"-"`
	Model   string `yaml:"model" json:"model"`

	SystemPrompt string  `yaml:"system_prompt" json:"system_prompt"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
	TopP         float64 `yaml:"top_p" json:"top_p"`

	// HistoryLimit caps how many transcript entries are sent. Zero sends all.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Logger *slog.Logger `yaml:"-" json:"-"`
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSystemPrompt replaces the persona prompt.
func WithSystemPrompt(p string) Option {
	return func(c *Config) { c.SystemPrompt = p }
}

// WithSampling sets max tokens, temperature and top-p.
func WithSampling(maxTokens int, temperature, topP float64) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
		c.Temperature = temperature
		c.TopP = topP
	}
}

// WithHistoryLimit caps the transcript entries sent per request.
func WithHistoryLimit(n int) Option {
	return func(c *Config) { c.HistoryLimit = n }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the sampling used by the EcoTrack assistant.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		SystemPrompt: DefaultSystemPrompt,
		MaxTokens:    512,
		Temperature:  0.4,
		TopP:         0.9,
		HistoryLimit: 20,
		Timeout:      30 * time.Second,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	// The key is optional for self-hosted compatible endpoints.
	if c.APIKey == "" && c.BaseURL == DefaultConfig().BaseURL {
		return ErrNoAPIKey
	}
	return nil
}

package inference

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/teslashibe/go-ecotrack/internal/httpc"
	"github.com/teslashibe/go-ecotrack/pkg/conversation"
)

// Client generates replies through an OpenAI-compatible chat API.
type Client struct {
	cfg    *Config
	api    *openai.Client
	logger *slog.Logger
}

// NewClient creates a chat client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpc.NewClient(cfg.Timeout)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(oc),
		logger: logger.With("component", "inference.client", "model", cfg.Model),
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "openai" }

// Respond answers the last user utterance given the transcript.
func (c *Client) Respond(ctx context.Context, history []conversation.Utterance) (string, error) {
	msgs, err := c.messages(history)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: float32(c.cfg.Temperature),
		TopP:        float32(c.cfg.TopP),
	})
	if err != nil {
		return "", fromOpenAI(c.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrMalformedReply
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrMalformedReply
	}

	c.logger.Debug("reply",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason,
	)
	return text, nil
}

func (c *Client) messages(history []conversation.Utterance) ([]openai.ChatCompletionMessage, error) {
	if len(history) == 0 || history[len(history)-1].Role != conversation.RoleUser {
		return nil, ErrNoUserTurn
	}
	if n := c.cfg.HistoryLimit; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if c.cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.cfg.SystemPrompt,
		})
	}
	for _, u := range history {
		role := openai.ChatMessageRoleUser
		if u.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: u.Content})
	}
	return msgs, nil
}

var _ conversation.Responder = (*Client)(nil)

package inference

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-ecotrack/pkg/conversation"
)

// Chain tries multiple responders in order until one succeeds.
type Chain struct {
	responders []conversation.Responder
	logger     *slog.Logger
}

// NewChain creates a responder chain.
// At least one responder is required.
func NewChain(responders ...conversation.Responder) (*Chain, error) {
	if len(responders) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		responders: responders,
		logger:     slog.Default().With("component", "inference.chain"),
	}, nil
}

// NewChainWithLogger creates a responder chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, responders ...conversation.Responder) (*Chain, error) {
	chain, err := NewChain(responders...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "inference.chain")
	return chain, nil
}

// Respond tries each responder until one produces a reply.
func (c *Chain) Respond(ctx context.Context, history []conversation.Utterance) (string, error) {
	var errs []error
	for i, r := range c.responders {
		reply, err := r.Respond(ctx, history)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback responder succeeded", "responder_index", i)
			}
			return reply, nil
		}

		errs = append(errs, err)
		c.logger.Warn("responder failed, trying next", "responder_index", i, "error", err)

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", &ChainError{Errors: errs}
}

var _ conversation.Responder = (*Chain)(nil)

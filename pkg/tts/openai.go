package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/teslashibe/go-ecotrack/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI implements Provider with the OpenAI speech endpoint.
type OpenAI struct {
	config *Config
	api    *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = string(openai.TTSModel1)
	cfg.VoiceID = string(openai.VoiceShimmer)
	cfg.Apply(opts...)
	cfg.OutputFormat = EncodingPCM24

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpc.Streaming()

	return &OpenAI{
		config: cfg,
		api:    openai.NewClientWithConfig(oc),
		logger: cfg.Logger.With("component", "tts.openai"),
	}, nil
}

func (o *OpenAI) request(req Request) openai.CreateSpeechRequest {
	req = o.config.resolve(req)
	return openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.ModelID),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(o.config.VoiceID),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          req.Speed,
	}
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	start := time.Now()
	stream, err := o.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	latency := time.Since(start).Milliseconds()

	var audio []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
		}
		if chunk == nil {
			break
		}
		audio = append(audio, chunk...)
	}

	format := stream.Format()
	o.logger.Debug("synthesized audio", "chars", len(req.Text), "bytes", len(audio), "latency_ms", latency)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(req.Text),
		LatencyMs: latency,
		Duration:  format.DurationOf(len(audio)),
	}, nil
}

// Stream converts text to audio with streaming output.
func (o *OpenAI) Stream(ctx context.Context, req Request) (AudioStream, error) {
	if req.Text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	raw, err := o.api.CreateSpeech(ctx, o.request(req))
	if err != nil {
		return nil, fromOpenAI(err)
	}
	// "pcm" output is always 24kHz mono PCM16.
	return &httpStream{body: raw, format: FormatFor(EncodingPCM24)}, nil
}

// Health lists models to check the key.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.api.ListModels(ctx); err != nil {
		return fromOpenAI(err)
	}
	return nil
}

// Close releases resources held by the provider.
func (o *OpenAI) Close() error { return nil }

func fromOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Provider: providerOpenAI}
		if apiErr.Code != nil {
			e.Code = fmt.Sprint(apiErr.Code)
		}
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Provider: providerOpenAI}
	}
	return WrapError(providerOpenAI, err)
}

var _ Provider = (*OpenAI)(nil)

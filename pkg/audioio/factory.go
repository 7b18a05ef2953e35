package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource builds the microphone input for cfg.Backend. The stream
// backend waits for browser audio; the mock backend hums a sine tone so
// the orb has something to show offline.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendStream, "":
		logger.Debug("audio input", "backend", BackendStream, "sample_rate", cfg.SampleRate)
		return NewStreamSource(cfg, logger), nil
	case BackendMock:
		logger.Debug("audio input", "backend", BackendMock, "sample_rate", cfg.SampleRate)
		return NewMockSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", cfg.Backend)
	}
}

// NewSink builds the speaker output for cfg.Backend. opts only apply to
// the stream backend.
func NewSink(cfg Config, logger *slog.Logger, opts ...StreamSinkOption) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audioio: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendStream, "":
		return NewStreamSink(cfg, logger, opts...), nil
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", cfg.Backend)
	}
}

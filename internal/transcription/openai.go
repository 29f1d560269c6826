package transcription

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elian-pro/Transcribir/internal/bridge"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient transcribes through the OpenAI audio API
type OpenAIClient struct {
	*baseClient
	logger *slog.Logger
}

// NewOpenAIClient creates an OpenAI client. An empty model selects whisper-1
// and an empty endpoint selects the public API.
func NewOpenAIClient(config Config, logger *slog.Logger) *OpenAIClient {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}

	return &OpenAIClient{
		baseClient: newBaseClient(config),
		logger:     logger,
	}
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return ProviderOpenAI
}

// Stats returns current client statistics
func (c *OpenAIClient) Stats() ClientStats {
	return c.stats(ProviderOpenAI)
}

// Close gracefully shuts down the client
func (c *OpenAIClient) Close() error {
	return c.close()
}

func (c *OpenAIClient) clientFor(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if c.config.Endpoint != "" {
		cfg.BaseURL = strings.TrimRight(c.config.Endpoint, "/")
	}
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

// Transcribe uploads the WAV container in a single request
func (c *OpenAIClient) Transcribe(ctx context.Context, request *Request) (*Response, error) {
	if request.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload := request.Audio
	if len(payload) == 0 && request.AudioBase64 != "" {
		decoded, err := bridge.Decode(request.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid audio payload: %w", ErrTranscriptionFailed, err)
		}
		payload = decoded
	}

	if err := c.acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: no request slot available: %w", ErrTranscriptionFailed, err)
	}
	defer c.release()

	startTime := time.Now()
	c.incrementTotalRequests()

	resp, err := c.clientFor(request.APIKey).CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.config.Model,
		FilePath:    "audio.wav",
		Reader:      bytes.NewReader(payload),
		Prompt:      request.Prompt,
		Temperature: request.Temperature,
		Format:      openai.AudioResponseFormatJSON,
	})

	text := ""
	if err == nil {
		text = strings.TrimSpace(resp.Text)
		if text == "" {
			err = ErrEmptyTranscript
		}
	} else {
		err = fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	elapsed := time.Since(startTime)
	c.recordResult(err == nil, elapsed)

	if err != nil {
		c.logger.Warn("OpenAI transcription failed",
			slog.String("request_id", request.RequestID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}

	c.logger.Debug("OpenAI transcription completed",
		slog.String("request_id", request.RequestID),
		slog.Int("text_length", len(text)),
		slog.Duration("elapsed", elapsed))

	return &Response{
		Text:        text,
		Provider:    ProviderOpenAI,
		Model:       c.config.Model,
		RequestID:   request.RequestID,
		Latency:     elapsed,
		ProcessedAt: time.Now(),
	}, nil
}

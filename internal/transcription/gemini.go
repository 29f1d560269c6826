package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elian-pro/Transcribir/internal/bridge"
)

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel    = "gemini-3-flash-preview"
)

// GeminiClient calls the generateContent REST API with inline audio
type GeminiClient struct {
	*baseClient
	logger *slog.Logger
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature float32 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiClient creates a Gemini client. Endpoint and model fall back to
// the public API and the default model.
func NewGeminiClient(config Config, logger *slog.Logger) *GeminiClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultGeminiEndpoint
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")

	if config.Model == "" {
		config.Model = DefaultGeminiModel
	}

	return &GeminiClient{
		baseClient: newBaseClient(config),
		logger:     logger,
	}
}

// Name returns the provider name
func (c *GeminiClient) Name() string {
	return ProviderGemini
}

// Stats returns current client statistics
func (c *GeminiClient) Stats() ClientStats {
	return c.stats(ProviderGemini)
}

// Close gracefully shuts down the client
func (c *GeminiClient) Close() error {
	return c.close()
}

// Transcribe sends the audio in a single generateContent call
func (c *GeminiClient) Transcribe(ctx context.Context, request *Request) (*Response, error) {
	if request.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if err := c.acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: no request slot available: %w", ErrTranscriptionFailed, err)
	}
	defer c.release()

	startTime := time.Now()
	c.incrementTotalRequests()

	text, err := c.doRequest(ctx, request)
	elapsed := time.Since(startTime)
	c.recordResult(err == nil, elapsed)

	if err != nil {
		c.logger.Warn("Gemini transcription failed",
			slog.String("request_id", request.RequestID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return nil, err
	}

	c.logger.Debug("Gemini transcription completed",
		slog.String("request_id", request.RequestID),
		slog.Int("text_length", len(text)),
		slog.Duration("elapsed", elapsed))

	return &Response{
		Text:        text,
		Provider:    ProviderGemini,
		Model:       c.config.Model,
		RequestID:   request.RequestID,
		Latency:     elapsed,
		ProcessedAt: time.Now(),
	}, nil
}

func (c *GeminiClient) buildBody(request *Request) ([]byte, error) {
	data := request.AudioBase64
	if data == "" {
		data = bridge.Encode(request.Audio)
	} else {
		data = bridge.StripDataURI(data)
	}

	mimeType := request.MimeType
	if mimeType == "" {
		mimeType = MimeTypeWAV
	}

	prompt := request.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	return json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: data}},
				{Text: prompt},
			},
		}},
		GenerationConfig: geminiGenerationConfig{Temperature: request.Temperature},
	})
}

// doRequest performs a single HTTP request to the generateContent API
func (c *GeminiClient) doRequest(ctx context.Context, request *Request) (string, error) {
	body, err := c.buildBody(request)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request: %w", ErrTranscriptionFailed, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create HTTP request: %w", ErrTranscriptionFailed, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-goog-api-key", request.APIKey)
	httpReq.Header.Set("User-Agent", "Transcribir/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: HTTP request failed: %w", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrTranscriptionFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr geminiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: HTTP error %d (%s): %s",
				ErrTranscriptionFailed, resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: HTTP error %d: %s", ErrTranscriptionFailed, resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to parse response JSON: %w", ErrTranscriptionFailed, err)
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: request blocked: %s", ErrTranscriptionFailed, parsed.PromptFeedback.BlockReason)
	}

	text := strings.TrimSpace(parsed.text())
	if text == "" {
		return "", ErrEmptyTranscript
	}

	return text, nil
}

// text joins the text parts of the first candidate
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elian-pro/Transcribir/internal/config"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// MimeTypeWAV tags the payload sent to the model
	MimeTypeWAV = "audio/wav"

	// DefaultTemperature keeps output close to deterministic
	DefaultTemperature float32 = 0.1
)

// DefaultPrompt is the instruction sent alongside the audio
const DefaultPrompt = "Produce a detailed transcript of this audio. " +
	"Detect the language automatically and return only the transcribed text. " +
	"If there are several speakers, separate them with labels such as [Speaker 1]: ... [Speaker 2]: ..."

var (
	// ErrTranscriptionFailed wraps every remote failure
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrMissingAPIKey is returned before any network I/O when no key is given
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrEmptyTranscript is returned when the model answers without text
	ErrEmptyTranscript = fmt.Errorf("%w: model returned no text", ErrTranscriptionFailed)
)

// Provider is a remote transcription backend
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, request *Request) (*Response, error)
	Stats() ClientStats
	Close() error
}

// Request carries one encoded audio payload
type Request struct {
	Audio       []byte // WAV container
	AudioBase64 string // bridged form of Audio, computed when empty
	MimeType    string
	Prompt      string
	Temperature float32
	APIKey      string
	RequestID   string
}

// Response is the model's answer
type Response struct {
	Text        string        `json:"text"`
	Provider    string        `json:"provider"`
	Model       string        `json:"model"`
	RequestID   string        `json:"request_id"`
	Latency     time.Duration `json:"latency"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// Config contains transcription client configuration
type Config struct {
	Provider      string
	Endpoint      string
	Model         string
	Timeout       time.Duration
	MaxConcurrent int
}

// ConfigFrom converts the file configuration section
func ConfigFrom(c config.TranscriptionConfig) Config {
	return Config{
		Provider:      c.Provider,
		Endpoint:      c.Endpoint,
		Model:         c.Model,
		Timeout:       c.GetTimeoutDuration(),
		MaxConcurrent: c.MaxConcurrent,
	}
}

// New creates the provider named in cfg
func New(cfg Config, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(cfg, logger), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

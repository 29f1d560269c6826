// Package pipeline runs one transcription attempt end to end: decode the
// media, encode a 16-bit WAV container, bridge it to base64 and submit it
// to the transcription provider.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elian-pro/Transcribir/internal/audio"
	"github.com/elian-pro/Transcribir/internal/bridge"
	"github.com/elian-pro/Transcribir/internal/decode"
	"github.com/elian-pro/Transcribir/internal/metrics"
	"github.com/elian-pro/Transcribir/internal/transcription"
	"github.com/google/uuid"
)

// Stage is a step reported while a run is in progress
type Stage string

const (
	StageExtracting   Stage = "extracting_audio"
	StageTranscribing Stage = "transcribing"
)

// Error taxonomy. Every error returned by Run wraps exactly one of these,
// or a context error when the run was cancelled.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDecode            = errors.New("decode failure")
	ErrMissingCredential = errors.New("missing credential")
	ErrRemote            = errors.New("remote failure")
)

// Decoder turns a media file into samples
type Decoder interface {
	Decode(ctx context.Context, path, mediaType string) (*audio.DecodedAudio, error)
}

// Input identifies the media to transcribe
type Input struct {
	Path      string
	Name      string
	MediaType string
}

// Options are fixed per pipeline
type Options struct {
	Prompt      string
	Temperature float32
}

// Result is the outcome of a successful run
type Result struct {
	Text                  string    `json:"text"`
	SourceDurationSeconds float64   `json:"duration"`
	SampleRate            int       `json:"sample_rate"`
	Channels              int       `json:"channels"`
	EncodedBytes          int       `json:"encoded_bytes"`
	Provider              string    `json:"provider"`
	RequestID             string    `json:"request_id"`
	CompletedAt           time.Time `json:"completed_at"`
}

// Pipeline holds the collaborators shared by all runs
type Pipeline struct {
	decoder  Decoder
	provider transcription.Provider
	options  Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a pipeline. An empty prompt selects the provider default.
func New(decoder Decoder, provider transcription.Provider, options Options, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		decoder:  decoder,
		provider: provider,
		options:  options,
		metrics:  m,
		logger:   logger,
	}
}

// Run executes one attempt. onStage, when non-nil, is called as each stage
// begins. Input type and credential are checked before any work starts.
func (p *Pipeline) Run(ctx context.Context, in Input, apiKey string, onStage func(Stage)) (result *Result, err error) {
	requestID := uuid.NewString()
	logger := p.logger.With(slog.String("request_id", requestID), slog.String("file", in.Name))

	defer func() {
		p.metrics.RecordPipelineRun(Outcome(err))
	}()

	if !decode.IsSupported(in.MediaType) {
		return nil, fmt.Errorf("%w: %q is not an audio or video type", ErrInvalidInput, in.MediaType)
	}

	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}

	notify(onStage, StageExtracting)

	decodeStart := time.Now()
	decoded, err := p.decoder.Decode(ctx, in.Path, in.MediaType)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Failed to decode media", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if decoded.ChannelCount() == 0 || decoded.Frames() == 0 {
		return nil, fmt.Errorf("%w: no audio samples", ErrDecode)
	}
	p.metrics.RecordDecode(time.Since(decodeStart).Seconds(), decoded.Duration())

	encodeStart := time.Now()
	wavData, err := audio.EncodeWAV(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	p.metrics.RecordEncode(time.Since(encodeStart).Seconds(), len(wavData))

	payload := bridge.Encode(wavData)

	logger.Info("Audio extracted",
		slog.Int("sample_rate", decoded.SampleRate),
		slog.Int("channels", decoded.ChannelCount()),
		slog.Float64("duration_seconds", decoded.Duration()),
		slog.Int("wav_bytes", len(wavData)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notify(onStage, StageTranscribing)

	p.metrics.RecordTranscriptionRequest()
	callStart := time.Now()
	resp, err := p.provider.Transcribe(ctx, &transcription.Request{
		Audio:       wavData,
		AudioBase64: payload,
		MimeType:    transcription.MimeTypeWAV,
		Prompt:      p.options.Prompt,
		Temperature: p.options.Temperature,
		APIKey:      apiKey,
		RequestID:   requestID,
	})
	if err != nil {
		p.metrics.RecordTranscriptionFailure(time.Since(callStart).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, transcription.ErrMissingAPIKey) {
			return nil, ErrMissingCredential
		}
		return nil, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	p.metrics.RecordTranscriptionSuccess(time.Since(callStart).Seconds())

	logger.Info("Transcription completed",
		slog.String("provider", p.provider.Name()),
		slog.Int("text_length", len(resp.Text)),
		slog.Duration("elapsed", time.Since(callStart)))

	return &Result{
		Text:                  resp.Text,
		SourceDurationSeconds: decoded.Duration(),
		SampleRate:            decoded.SampleRate,
		Channels:              decoded.ChannelCount(),
		EncodedBytes:          len(wavData),
		Provider:              p.provider.Name(),
		RequestID:             requestID,
		CompletedAt:           time.Now(),
	}, nil
}

func notify(onStage func(Stage), stage Stage) {
	if onStage != nil {
		onStage(stage)
	}
}

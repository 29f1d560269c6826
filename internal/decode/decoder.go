package decode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/elian-pro/Transcribir/internal/audio"
)

// ErrDecodeFailed wraps every failure to turn media into samples
var ErrDecodeFailed = errors.New("failed to decode audio")

// ErrNoAudio is returned when the media has no audio stream
var ErrNoAudio = errors.New("media has no audio stream")

// Decoder produces decoded samples from a media file on disk
type Decoder interface {
	Name() string
	Supports(mediaType string) bool
	Decode(ctx context.Context, path string) (*audio.DecodedAudio, error)
}

// Registry tries decoders in order
type Registry struct {
	decoders []Decoder
	logger   *slog.Logger
}

// NewRegistry creates a registry over the given decoders
func NewRegistry(logger *slog.Logger, decoders ...Decoder) *Registry {
	return &Registry{
		decoders: decoders,
		logger:   logger,
	}
}

// Decode runs the first decoder that supports mediaType and succeeds
func (r *Registry) Decode(ctx context.Context, path, mediaType string) (*audio.DecodedAudio, error) {
	var errs []error

	for _, d := range r.decoders {
		if !d.Supports(mediaType) {
			continue
		}

		decoded, err := d.Decode(ctx, path)
		if err == nil {
			r.logger.Debug("Media decoded",
				slog.String("decoder", d.Name()),
				slog.String("media_type", mediaType),
				slog.Int("sample_rate", decoded.SampleRate),
				slog.Int("channels", decoded.ChannelCount()),
				slog.Int("frames", decoded.Frames()))
			return decoded, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		r.logger.Debug("Decoder failed",
			slog.String("decoder", d.Name()),
			slog.String("media_type", mediaType),
			slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrDecodeFailed, mediaType)
	}

	return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, errors.Join(errs...))
}

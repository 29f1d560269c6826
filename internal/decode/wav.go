package decode

import (
	"context"
	"fmt"
	"os"

	"github.com/elian-pro/Transcribir/internal/audio"
	goaudiowav "github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WAVDecoder reads integer PCM WAV files without spawning external tools
type WAVDecoder struct{}

// NewWAVDecoder creates a WAV decoder
func NewWAVDecoder() *WAVDecoder {
	return &WAVDecoder{}
}

// Name returns the decoder name
func (d *WAVDecoder) Name() string {
	return "wav"
}

// Supports reports whether mediaType is WAV
func (d *WAVDecoder) Supports(mediaType string) bool {
	return IsWAV(mediaType)
}

// Decode reads the whole file and normalises samples by bit depth
func (d *WAVDecoder) Decode(ctx context.Context, path string) (*audio.DecodedAudio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := goaudiowav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("unsupported WAV format %d", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, ErrNoAudio
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = normalize(v, bitDepth)
	}

	return &audio.DecodedAudio{
		SampleRate: buf.Format.SampleRate,
		Channels:   audio.Deinterleave(samples, buf.Format.NumChannels),
	}, nil
}

// normalize maps an integer sample to [-1, 1]. 8-bit WAV is unsigned.
func normalize(v, bitDepth int) float32 {
	if bitDepth == 8 {
		return float32(v-128) / 128
	}

	scale := float32(int64(1) << (bitDepth - 1))
	f := float32(v) / scale
	if f > 1 {
		return 1
	}
	return f
}

package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/elian-pro/Transcribir/internal/audio"
)

// StreamInfo describes the first audio stream of a media file
type StreamInfo struct {
	SampleRate int
	Channels   int
	Codec      string
}

// FFmpegDecoder extracts the first audio track of any container ffmpeg understands
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewFFmpegDecoder creates a decoder using the given executables
func NewFFmpegDecoder(ffmpegPath, ffprobePath string, logger *slog.Logger) *FFmpegDecoder {
	return &FFmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

// Name returns the decoder name
func (d *FFmpegDecoder) Name() string {
	return "ffmpeg"
}

// Supports accepts any audio or video type
func (d *FFmpegDecoder) Supports(mediaType string) bool {
	return IsSupported(mediaType)
}

type probeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Probe reads the layout of the first audio stream
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(out.Streams) == 0 {
		return nil, ErrNoAudio
	}

	stream := out.Streams[0]
	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	if stream.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", stream.Channels)
	}

	return &StreamInfo{
		SampleRate: rate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
	}, nil
}

// Decode probes the file and then streams its audio as f32le at the
// source sample rate and channel count
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*audio.DecodedAudio, error) {
	info, err := d.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	buffer, err := audio.NewBuffer(info.SampleRate, info.Channels)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-nostdin",
		"-v", "error",
		"-i", path,
		"-vn",
		"-map", "0:a:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stdout = buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	stats := buffer.GetStats()
	d.logger.Debug("FFmpeg extraction finished",
		slog.String("path", path),
		slog.String("codec", info.Codec),
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("channels", info.Channels),
		slog.Int("frames", stats.Frames),
		slog.Uint64("bytes", stats.BytesReceived),
		slog.Duration("elapsed", time.Since(start)))

	return buffer.Decoded(), nil
}

package audio

import (
	"fmt"
	"time"
)

// DecodedAudio is the output of a sample decoder: one slice of samples in
// [-1.0, 1.0] per channel, all of equal length.
type DecodedAudio struct {
	SampleRate int
	Channels   [][]float32
}

// ChannelCount returns the number of channels
func (d *DecodedAudio) ChannelCount() int {
	return len(d.Channels)
}

// Frames returns the number of samples per channel
func (d *DecodedAudio) Frames() int {
	if len(d.Channels) == 0 {
		return 0
	}
	return len(d.Channels[0])
}

// Duration returns the playback length in seconds
func (d *DecodedAudio) Duration() float64 {
	if d.SampleRate <= 0 {
		return 0
	}
	return float64(d.Frames()) / float64(d.SampleRate)
}

// DurationTime returns Duration as a time.Duration
func (d *DecodedAudio) DurationTime() time.Duration {
	return time.Duration(d.Duration() * float64(time.Second))
}

// Validate checks the structural invariants the encoder relies on
func (d *DecodedAudio) Validate() error {
	if d.SampleRate < 0 {
		return fmt.Errorf("sample rate must not be negative, got %d", d.SampleRate)
	}

	frames := d.Frames()
	for c, channel := range d.Channels {
		if len(channel) != frames {
			return fmt.Errorf("channel %d has %d samples, expected %d", c, len(channel), frames)
		}
	}

	return nil
}

// Deinterleave splits frame-major interleaved samples into per-channel slices.
// A trailing partial frame is dropped.
func Deinterleave(interleaved []float32, numChannels int) [][]float32 {
	if numChannels <= 0 {
		return nil
	}

	numFrames := len(interleaved) / numChannels
	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, numFrames)
	}

	for f := 0; f < numFrames; f++ {
		base := f * numChannels
		for c := 0; c < numChannels; c++ {
			channels[c][f] = interleaved[base+c]
		}
	}

	return channels
}

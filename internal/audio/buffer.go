package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

const float32Size = 4

// Buffer accumulates interleaved little-endian float32 PCM as produced by a
// decoder process and splits it into per-channel samples on demand.
// It implements io.Writer so it can sit directly on a decoder's stdout.
type Buffer struct {
	sampleRate  int
	numChannels int

	samples []float32 // interleaved
	partial []byte    // bytes of an incomplete float32 carried between writes

	totalBytes uint64
	lastUpdate time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	SampleRate    int       `json:"sample_rate"`
	Channels      int       `json:"channels"`
	Frames        int       `json:"frames"`
	BytesReceived uint64    `json:"bytes_received"`
	PendingBytes  int       `json:"pending_bytes"`
	LastUpdate    time.Time `json:"last_update"`
}

// NewBuffer creates a buffer for audio with the given layout
func NewBuffer(sampleRate, numChannels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if numChannels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", numChannels)
	}

	return &Buffer{
		sampleRate:  sampleRate,
		numChannels: numChannels,
		lastUpdate:  time.Now(),
	}, nil
}

// Write appends raw f32le bytes. Writes need not be aligned to sample boundaries.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	b.totalBytes += uint64(n)
	b.lastUpdate = time.Now()

	if len(b.partial) > 0 {
		need := float32Size - len(b.partial)
		if len(p) < need {
			b.partial = append(b.partial, p...)
			return n, nil
		}
		b.partial = append(b.partial, p[:need]...)
		b.samples = append(b.samples, math.Float32frombits(binary.LittleEndian.Uint32(b.partial)))
		b.partial = b.partial[:0]
		p = p[need:]
	}

	whole := len(p) / float32Size * float32Size
	for offset := 0; offset < whole; offset += float32Size {
		bits := binary.LittleEndian.Uint32(p[offset : offset+float32Size])
		b.samples = append(b.samples, math.Float32frombits(bits))
	}

	if rest := p[whole:]; len(rest) > 0 {
		b.partial = append(b.partial, rest...)
	}

	return n, nil
}

// Frames returns the number of complete frames buffered
func (b *Buffer) Frames() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples) / b.numChannels
}

// Decoded returns the buffered frames split per channel.
// Incomplete trailing frames and bytes are not included.
func (b *Buffer) Decoded() *DecodedAudio {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return &DecodedAudio{
		SampleRate: b.sampleRate,
		Channels:   Deinterleave(b.samples, b.numChannels),
	}
}

// Reset clears all buffered data but keeps capacity
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.partial = b.partial[:0]
	b.totalBytes = 0
	b.lastUpdate = time.Now()
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		SampleRate:    b.sampleRate,
		Channels:      b.numChannels,
		Frames:        len(b.samples) / b.numChannels,
		BytesReceived: b.totalBytes,
		PendingBytes:  len(b.partial),
		LastUpdate:    b.lastUpdate,
	}
}

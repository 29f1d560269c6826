package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func float32Bytes(values ...float32) []byte {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}

func TestNewBuffer(t *testing.T) {
	buffer, err := NewBuffer(44100, 2)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	if buffer.Frames() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.Frames())
	}

	stats := buffer.GetStats()
	if stats.SampleRate != 44100 || stats.Channels != 2 {
		t.Errorf("Unexpected layout in stats: %+v", stats)
	}
}

func TestNewBufferInvalid(t *testing.T) {
	if _, err := NewBuffer(0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := NewBuffer(8000, 0); err == nil {
		t.Error("Expected error for zero channels")
	}
}

func TestBufferDeinterleaves(t *testing.T) {
	buffer, err := NewBuffer(8000, 2)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	if _, err := buffer.Write(float32Bytes(0.1, -0.1, 0.2, -0.2, 0.3, -0.3)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	decoded := buffer.Decoded()
	if decoded.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", decoded.SampleRate)
	}
	if decoded.ChannelCount() != 2 || decoded.Frames() != 3 {
		t.Fatalf("Expected 2x3 samples, got %dx%d", decoded.ChannelCount(), decoded.Frames())
	}

	expectedLeft := []float32{0.1, 0.2, 0.3}
	expectedRight := []float32{-0.1, -0.2, -0.3}
	for i := range expectedLeft {
		if decoded.Channels[0][i] != expectedLeft[i] {
			t.Errorf("Left sample %d: expected %f, got %f", i, expectedLeft[i], decoded.Channels[0][i])
		}
		if decoded.Channels[1][i] != expectedRight[i] {
			t.Errorf("Right sample %d: expected %f, got %f", i, expectedRight[i], decoded.Channels[1][i])
		}
	}
}

func TestBufferUnalignedWrites(t *testing.T) {
	buffer, err := NewBuffer(16000, 1)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	data := float32Bytes(0.25, -0.5, 0.75)
	// Split at awkward boundaries: 1, 2, 6, rest
	chunks := [][]byte{data[:1], data[1:3], data[3:9], data[9:]}
	for _, chunk := range chunks {
		n, err := buffer.Write(chunk)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != len(chunk) {
			t.Errorf("Expected %d bytes written, got %d", len(chunk), n)
		}
	}

	decoded := buffer.Decoded()
	expected := []float32{0.25, -0.5, 0.75}
	if decoded.Frames() != len(expected) {
		t.Fatalf("Expected %d frames, got %d", len(expected), decoded.Frames())
	}
	for i, v := range expected {
		if decoded.Channels[0][i] != v {
			t.Errorf("Sample %d: expected %f, got %f", i, v, decoded.Channels[0][i])
		}
	}

	if stats := buffer.GetStats(); stats.PendingBytes != 0 || stats.BytesReceived != uint64(len(data)) {
		t.Errorf("Unexpected stats after aligned total: %+v", stats)
	}
}

func TestBufferDropsPartialFrame(t *testing.T) {
	buffer, err := NewBuffer(8000, 2)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}

	buffer.Write(float32Bytes(0.1, 0.2, 0.3))
	buffer.Write([]byte{0x01, 0x02})

	if buffer.Frames() != 1 {
		t.Errorf("Expected 1 complete frame, got %d", buffer.Frames())
	}

	if stats := buffer.GetStats(); stats.PendingBytes != 2 {
		t.Errorf("Expected 2 pending bytes, got %d", stats.PendingBytes)
	}

	buffer.Reset()
	if buffer.Frames() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d frames", buffer.Frames())
	}
}

func TestDecodedAudioDuration(t *testing.T) {
	decoded := &DecodedAudio{SampleRate: 8000, Channels: [][]float32{make([]float32, 12000)}}
	if decoded.Duration() != 1.5 {
		t.Errorf("Expected duration 1.5, got %f", decoded.Duration())
	}

	empty := &DecodedAudio{}
	if empty.Duration() != 0 || empty.Frames() != 0 {
		t.Errorf("Expected zero duration for empty audio")
	}
}

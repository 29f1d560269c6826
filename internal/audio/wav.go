package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// WAVHeaderSize is the size of the canonical PCM header written by EncodeWAV
	WAVHeaderSize = 44

	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	formatPCM      = 1
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV serializes decoded audio into a 16-bit PCM WAV container.
// Samples are interleaved frame by frame in channel order. Zero channels or
// zero frames produce a header-only container.
func EncodeWAV(decoded *DecodedAudio) ([]byte, error) {
	if decoded == nil {
		return nil, fmt.Errorf("cannot encode nil audio")
	}

	if err := decoded.Validate(); err != nil {
		return nil, err
	}

	numChannels := uint64(decoded.ChannelCount())
	numFrames := uint64(decoded.Frames())
	sampleRate := uint64(decoded.SampleRate)

	dataSize := numChannels * numFrames * bytesPerSample
	if dataSize+WAVHeaderSize-8 > math.MaxUint32 {
		return nil, fmt.Errorf("audio too large for WAV container: %d data bytes", dataSize)
	}
	if numChannels > math.MaxUint16/bytesPerSample {
		return nil, fmt.Errorf("too many channels for WAV container: %d", numChannels)
	}
	byteRate := sampleRate * numChannels * bytesPerSample
	if byteRate > math.MaxUint32 {
		return nil, fmt.Errorf("byte rate overflows WAV header: %d", byteRate)
	}

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(dataSize + WAVHeaderSize - 8),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   uint16(numChannels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(byteRate),
		BlockAlign:    uint16(numChannels * bytesPerSample),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+int(dataSize)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	// Frame-major, channel-minor: LRLRLR for stereo.
	var sample [bytesPerSample]byte
	for f := 0; f < int(numFrames); f++ {
		for _, channel := range decoded.Channels {
			binary.LittleEndian.PutUint16(sample[:], uint16(FloatToPCM16(channel[f])))
			buf.Write(sample[:])
		}
	}

	return buf.Bytes(), nil
}

// FloatToPCM16 converts a floating-point sample to a signed 16-bit value.
// Input is clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767 so both ends of the int16 range are reachable.
func FloatToPCM16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}

	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

// PCM16ToFloat is the inverse of FloatToPCM16 up to quantization error
func PCM16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(float64(v) / 32768)
	}
	return float32(float64(v) / 32767)
}

// DecodeWAV decodes 16-bit PCM WAV data back into per-channel samples
func DecodeWAV(data []byte) (*DecodedAudio, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	if header.AudioFormat != formatPCM {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != bitsPerSample {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	numChannels := int(header.NumChannels)
	payload := data[WAVHeaderSize:]
	if int(header.Subchunk2Size) > len(payload) {
		return nil, fmt.Errorf("WAV data truncated: header declares %d bytes, got %d", header.Subchunk2Size, len(payload))
	}
	payload = payload[:header.Subchunk2Size]

	numFrames := 0
	if numChannels > 0 {
		numFrames = len(payload) / (numChannels * bytesPerSample)
	}

	channels := make([][]float32, numChannels)
	for c := range channels {
		channels[c] = make([]float32, numFrames)
	}

	offset := 0
	for f := 0; f < numFrames; f++ {
		for c := 0; c < numChannels; c++ {
			v := int16(binary.LittleEndian.Uint16(payload[offset : offset+bytesPerSample]))
			channels[c][f] = PCM16ToFloat(v)
			offset += bytesPerSample
		}
	}

	return &DecodedAudio{
		SampleRate: int(header.SampleRate),
		Channels:   channels,
	}, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if size := binary.LittleEndian.Uint32(data[4:8]); int(size) != len(data)-8 {
		return fmt.Errorf("invalid WAV file: RIFF size %d does not match length %d", size, len(data)-8)
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	var numFrames uint32
	if header.BlockAlign > 0 {
		numFrames = header.Subchunk2Size / uint32(header.BlockAlign)
	}

	var duration float64
	if header.SampleRate > 0 {
		duration = float64(numFrames) / float64(header.SampleRate)
	}

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumFrames:     numFrames,
	}, nil
}

func readHeader(data []byte) (*WAVHeader, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	return &header, nil
}

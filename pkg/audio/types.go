// ABOUTME: Audio type definitions
// ABOUTME: Defines encoded payloads, decoded buffers and sample conversions
package audio

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TelephonyRate is the sample rate of mu-law and PCM16 telephony audio
const TelephonyRate = 8000

// Encoding tags the wire format of a Payload
type Encoding int

const (
	// EncodingContainer is a self-describing file (MP3, WAV, FLAC, Ogg/Opus)
	EncodingContainer Encoding = iota
	// EncodingMulaw is raw 8 kHz G.711 mu-law, one byte per sample
	EncodingMulaw
	// EncodingPCM16 is raw 8 kHz signed 16-bit little-endian PCM
	EncodingPCM16
)

// String returns the wire name of the encoding
func (e Encoding) String() string {
	switch e {
	case EncodingContainer:
		return "container-compressed"
	case EncodingMulaw:
		return "mulaw-8k"
	case EncodingPCM16:
		return "pcm16-8k"
	default:
		return "unknown"
	}
}

// Payload is encoded audio as received. Data must not be modified once the
// payload has been handed to the engine.
type Payload struct {
	Data     []byte
	Encoding Encoding

	// Key overrides the content-derived identity (optional)
	Key string
}

// Identity returns the cache key for this payload. Identical bytes with the
// same encoding always yield the same identity.
func (p Payload) Identity() string {
	if p.Key != "" {
		return p.Key
	}
	h := sha256.New()
	h.Write([]byte{byte(p.Encoding)})
	h.Write(p.Data)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Empty reports whether the payload carries no audio
func (p Payload) Empty() bool {
	return len(p.Data) == 0
}

// Buffer represents decoded PCM audio. Samples are interleaved when
// Channels > 1; the engine itself only produces mono buffers.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the buffer
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Mono folds interleaved channels down to one by averaging
func (b *Buffer) Mono() *Buffer {
	if b == nil || b.Channels <= 1 {
		return b
	}
	frames := b.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < b.Channels; ch++ {
			sum += b.Samples[i*b.Channels+ch]
		}
		out[i] = sum / float32(b.Channels)
	}
	return &Buffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}
}

// SampleFromInt16 converts a signed 16-bit sample to the [-1, 1] range
func SampleFromInt16(sample int16) float32 {
	return float32(sample) / 32768.0
}

// SampleToInt16 converts a normalized sample to signed 16-bit, clipping
func SampleToInt16(sample float32) int16 {
	s := Clamp(sample)
	if s >= 1 {
		return 32767
	}
	return int16(s * 32768.0)
}

// SampleFrom24Bit converts 24-bit packed bytes (little-endian) to [-1, 1]
func SampleFrom24Bit(b [3]byte) float32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return float32(val) / 8388608.0
}

// Clamp limits a sample to [-1, 1]
func Clamp(sample float32) float32 {
	if sample > 1 {
		return 1
	}
	if sample < -1 {
		return -1
	}
	return sample
}

// Priority orders playback items within a channel
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the priority name
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

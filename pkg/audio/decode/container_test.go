// ABOUTME: Tests for container sniffing and payload dispatch
// ABOUTME: Covers format detection, error classes and the wrapped raw path
package decode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "wav"},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), "flac"},
		{"opus", []byte("OggS\x00\x02\x00\x00\x00\x00\x00\x00\x00\x00OpusHead\x01\x02"), "opus"},
		{"ogg vorbis", []byte("OggS\x00\x02\x00\x00\x01vorbis"), ""},
		{"id3", []byte("ID3\x04\x00"), "mp3"},
		{"frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3"},
		{"mulaw silence", []byte{0xFF, 0xFF, 0xFF, 0xFF}, ""},
		{"short frame sync", []byte{0xFF, 0xFB}, ""},
		{"garbage", []byte("hello world"), ""},
		{"riff not wave", []byte("RIFF\x00\x00\x00\x00AVI "), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestContainerUnsupported(t *testing.T) {
	_, err := NewContainer().Decode(context.Background(), []byte("not audio at all"))
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestContainerEmpty(t *testing.T) {
	_, err := NewContainer().Decode(context.Background(), nil)
	if !errors.Is(err, audio.ErrCorruptPayload) {
		t.Errorf("expected ErrCorruptPayload, got %v", err)
	}
}

func TestContainerCorruptFLAC(t *testing.T) {
	_, err := NewContainer().Decode(context.Background(), []byte("fLaC\x00\x01"))
	if !errors.Is(err, audio.ErrCorruptPayload) {
		t.Errorf("expected ErrCorruptPayload, got %v", err)
	}
}

func TestContainerWAV(t *testing.T) {
	header, _ := SynthesizeHeader(4, audio.EncodingPCM16)
	file := append(header, PCM16Bytes([]int16{0, 1000, 2000, 3000})...)

	buf, err := NewContainer().Decode(context.Background(), file)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Frames() != 4 {
		t.Errorf("expected 4 frames, got %d", buf.Frames())
	}
	if buf.Duration() != 500*time.Microsecond {
		t.Errorf("expected 500us, got %v", buf.Duration())
	}
}

func TestPayloadDecoderRawPaths(t *testing.T) {
	raw := []byte{0x00, 0x20, 0x40, 0x7F, 0x80, 0xA0, 0xFF, 0x11}

	direct := NewPayloadDecoder(nil)
	wrapped := NewPayloadDecoder(nil)
	wrapped.WrapRaw = true

	a, err := direct.Decode(context.Background(), audio.Payload{Data: raw, Encoding: audio.EncodingMulaw})
	if err != nil {
		t.Fatalf("direct decode failed: %v", err)
	}
	b, err := wrapped.Decode(context.Background(), audio.Payload{Data: raw, Encoding: audio.EncodingMulaw})
	if err != nil {
		t.Fatalf("wrapped decode failed: %v", err)
	}
	if len(a.Samples) != len(raw) || len(b.Samples) != len(raw) {
		t.Fatalf("expected %d samples, got %d and %d", len(raw), len(a.Samples), len(b.Samples))
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Errorf("sample %d differs: %f vs %f", i, a.Samples[i], b.Samples[i])
		}
	}
}

func TestPayloadDecoderPCM16(t *testing.T) {
	dec := NewPayloadDecoder(nil)
	buf, err := dec.Decode(context.Background(), audio.Payload{
		Data:     PCM16Bytes([]int16{100, -100}),
		Encoding: audio.EncodingPCM16,
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(buf.Samples) != 2 || buf.SampleRate != 8000 {
		t.Errorf("expected 2 samples at 8000 Hz, got %d at %d", len(buf.Samples), buf.SampleRate)
	}

	dec.WrapRaw = true
	_, err = dec.Decode(context.Background(), audio.Payload{Data: []byte{1, 2, 3}, Encoding: audio.EncodingPCM16})
	if !errors.Is(err, audio.ErrCorruptPayload) {
		t.Errorf("expected ErrCorruptPayload for odd length, got %v", err)
	}
}

func TestPayloadDecoderContainerIsMono(t *testing.T) {
	header, _ := SynthesizeHeader(4, audio.EncodingPCM16)
	// Rewrite as stereo 16-bit: 2 frames of 2 channels
	header[22] = 2
	header[32] = 4
	file := append(header, PCM16Bytes([]int16{1000, 3000, -1000, -3000})...)

	buf, err := NewPayloadDecoder(nil).Decode(context.Background(), audio.Payload{Data: file})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Channels != 1 {
		t.Errorf("expected mono, got %d channels", buf.Channels)
	}
	if len(buf.Samples) != 2 {
		t.Errorf("expected 2 frames, got %d", len(buf.Samples))
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), true},
		{"id3", []byte("ID3\x04\x00"), true},
		{"bare frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, false},
		{"mulaw", []byte{0x7F, 0xFF, 0x12, 0x34}, false},
	}
	for _, tt := range tests {
		if got := Signature(tt.data); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

// ABOUTME: Synthetic voice fixtures for the bridge simulator
// ABOUTME: Sine tones rendered as WAV clips and mu-law telephony frames
package bridge

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/audio/decode"
	"github.com/Evatrad/evatrad-go/pkg/audio/encode"
)

// Tone is a sine wave standing in for speech
type Tone struct {
	Frequency float64
	Amplitude float64
}

// NewTone creates a tone at half scale
func NewTone(frequency float64) Tone {
	return Tone{Frequency: frequency, Amplitude: 0.5}
}

// Buffer renders d of the tone as mono 8 kHz audio
func (t Tone) Buffer(d time.Duration) *audio.Buffer {
	n := int(d * audio.TelephonyRate / time.Second)
	samples := make([]float32, n)
	for i := range samples {
		ts := float64(i) / audio.TelephonyRate
		samples[i] = float32(t.Amplitude * math.Sin(2*math.Pi*t.Frequency*ts))
	}
	return &audio.Buffer{Samples: samples, SampleRate: audio.TelephonyRate, Channels: 1}
}

// WAV renders d of the tone as a PCM16 WAV file
func (t Tone) WAV(d time.Duration) ([]byte, error) {
	pcm, err := encode.NewPCM16().Encode(t.Buffer(d))
	if err != nil {
		return nil, err
	}
	header, err := decode.SynthesizeHeader(len(pcm)/2, audio.EncodingPCM16)
	if err != nil {
		return nil, err
	}
	return append(header, pcm...), nil
}

// MulawFrames renders d of the tone as base64 mu-law frames of frame
// length each
func (t Tone) MulawFrames(d, frame time.Duration) ([]string, error) {
	data, err := encode.NewMulaw().Encode(t.Buffer(d))
	if err != nil {
		return nil, err
	}
	size := int(frame * audio.TelephonyRate / time.Second)
	if size <= 0 {
		return nil, fmt.Errorf("frame length %v too short", frame)
	}

	var frames []string
	for off := 0; off < len(data); off += size {
		end := min(off+size, len(data))
		frames = append(frames, base64.StdEncoding.EncodeToString(data[off:end]))
	}
	return frames, nil
}

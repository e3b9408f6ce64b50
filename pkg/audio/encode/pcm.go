// ABOUTME: Linear PCM encoder
// ABOUTME: Encodes buffers to 16-bit little-endian samples at 8 kHz
package encode

import (
	"encoding/binary"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// PCM16Encoder produces 8 kHz 16-bit little-endian PCM
type PCM16Encoder struct{}

// NewPCM16 creates a PCM16 encoder
func NewPCM16() *PCM16Encoder {
	return &PCM16Encoder{}
}

// Encode converts buf to 2 bytes per 8 kHz sample
func (e *PCM16Encoder) Encode(buf *audio.Buffer) ([]byte, error) {
	samples := telephony(buf)
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(s)))
	}
	return out, nil
}

// Encoding returns audio.EncodingPCM16
func (e *PCM16Encoder) Encoding() audio.Encoding {
	return audio.EncodingPCM16
}

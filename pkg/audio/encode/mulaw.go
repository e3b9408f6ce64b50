// ABOUTME: G.711 mu-law compression
// ABOUTME: Encodes linear PCM to companded telephony bytes
package encode

import (
	"fmt"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// MulawSample compresses one linear 16-bit sample
func MulawSample(sample int16) byte {
	v := int(sample)
	sign := 0
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias

	exponent := 7
	for mask := 0x4000; v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (v >> (exponent + 3)) & 0x0F

	return ^byte(sign | exponent<<4 | mantissa)
}

// MulawEncoder produces 8 kHz mu-law
type MulawEncoder struct{}

// NewMulaw creates a mu-law encoder
func NewMulaw() *MulawEncoder {
	return &MulawEncoder{}
}

// Encode converts buf to one mu-law byte per 8 kHz sample
func (e *MulawEncoder) Encode(buf *audio.Buffer) ([]byte, error) {
	samples := telephony(buf)
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MulawSample(audio.SampleToInt16(s))
	}
	return out, nil
}

// Encoding returns audio.EncodingMulaw
func (e *MulawEncoder) Encoding() audio.Encoding {
	return audio.EncodingMulaw
}

func unsupported(enc audio.Encoding) error {
	return fmt.Errorf("%w: cannot encode %s", audio.ErrUnsupportedFormat, enc)
}

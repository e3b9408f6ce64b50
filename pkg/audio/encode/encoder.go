// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for telephony encoders
package encode

import (
	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/audio/resample"
)

// Encoder encodes PCM buffers to telephony bytes
type Encoder interface {
	// Encode converts buf to encoded audio data at 8 kHz mono
	Encode(buf *audio.Buffer) ([]byte, error)

	// Encoding returns the wire encoding produced
	Encoding() audio.Encoding
}

// New returns the encoder for enc
func New(enc audio.Encoding) (Encoder, error) {
	switch enc {
	case audio.EncodingMulaw:
		return NewMulaw(), nil
	case audio.EncodingPCM16:
		return NewPCM16(), nil
	default:
		return nil, unsupported(enc)
	}
}

// telephony downmixes and resamples buf to 8 kHz mono samples
func telephony(buf *audio.Buffer) []float32 {
	if buf == nil {
		return nil
	}
	return resample.Resample(buf.Mono(), audio.TelephonyRate).Samples
}

// ABOUTME: G.711 mu-law expansion
// ABOUTME: 256-entry lookup table from companded bytes to linear PCM
package decode

import "github.com/Evatrad/evatrad-go/pkg/audio"

const mulawBias = 0x84

var mulawTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := int32(u & 0x0F)
		magnitude := ((mantissa << 3) + mulawBias) << exponent
		sample := int16(magnitude - mulawBias)
		if u&0x80 != 0 {
			sample = -sample
		}
		mulawTable[i] = sample
	}
}

// MulawSample expands one mu-law byte to a linear 16-bit sample
func MulawSample(b byte) int16 {
	return mulawTable[b]
}

// MulawToPCM16 expands mu-law bytes to linear 16-bit samples
func MulawToPCM16(data []byte) []int16 {
	pcm := make([]int16, len(data))
	for i, b := range data {
		pcm[i] = mulawTable[b]
	}
	return pcm
}

// Mulaw decodes 8 kHz mu-law to a normalized mono buffer. The output has
// exactly one sample per input byte.
func Mulaw(data []byte) *audio.Buffer {
	samples := make([]float32, len(data))
	for i, b := range data {
		samples[i] = audio.SampleFromInt16(mulawTable[b])
	}
	return &audio.Buffer{
		Samples:    samples,
		SampleRate: audio.TelephonyRate,
		Channels:   1,
	}
}

// ABOUTME: Linear PCM decoding
// ABOUTME: Decodes 8, 16 and 24-bit little-endian PCM to normalized samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// PCM16 decodes signed 16-bit little-endian mono PCM at the given rate
func PCM16(data []byte, sampleRate int) (*audio.Buffer, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM16 length %d", audio.ErrCorruptPayload, len(data))
	}
	samples, err := decodeLinear(data, 16)
	if err != nil {
		return nil, err
	}
	return &audio.Buffer{Samples: samples, SampleRate: sampleRate, Channels: 1}, nil
}

// PCM16Bytes packs 16-bit samples as little-endian bytes
func PCM16Bytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// decodeLinear converts packed PCM to float samples. 8-bit PCM is unsigned,
// wider depths are signed.
func decodeLinear(data []byte, bitDepth int) ([]float32, error) {
	switch bitDepth {
	case 8:
		samples := make([]float32, len(data))
		for i, b := range data {
			samples[i] = (float32(b) - 128) / 128.0
		}
		return samples, nil

	case 16:
		numSamples := len(data) / 2
		samples := make([]float32, numSamples)
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
		return samples, nil

	case 24:
		numSamples := len(data) / 3
		samples := make([]float32, numSamples)
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return samples, nil

	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d (supported: 8, 16, 24)", audio.ErrUnsupportedFormat, bitDepth)
	}
}
